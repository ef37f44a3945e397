// Package nice handles Nice classification sets: parsing the loose shapes
// bulletin data arrives in and deciding class relevance for a monitored mark.
package nice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

const (
	MinClass = 1
	MaxClass = 45
)

// ClassSet is a sorted, duplicate-free list of Nice classes.
type ClassSet []int

// NewClassSet keeps valid classes only.
func NewClassSet(classes ...int) ClassSet {
	out := make(ClassSet, 0, len(classes))
	for _, c := range classes {
		if c < MinClass || c > MaxClass {
			continue
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Parse accepts a list, a delimited string or a scalar and returns the
// classes it can read. Unreadable parts are ignored.
func Parse(value any) ClassSet {
	var classes []int
	collect(value, &classes)
	return NewClassSet(classes...)
}

// ParseString reads classes from text such as "32, 33", "9/42" or "35".
func ParseString(text string) ClassSet {
	fields := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsDigit(r) })
	classes := make([]int, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		classes = append(classes, n)
	}
	return NewClassSet(classes...)
}

func collect(value any, out *[]int) {
	switch v := value.(type) {
	case nil:
	case ClassSet:
		*out = append(*out, v...)
	case []int:
		*out = append(*out, v...)
	case []string:
		for _, s := range v {
			*out = append(*out, ParseString(s)...)
		}
	case []any:
		for _, item := range v {
			collect(item, out)
		}
	case string:
		*out = append(*out, ParseString(v)...)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			*out = append(*out, int(n))
			return
		}
		if f, err := v.Float64(); err == nil {
			collect(f, out)
		}
	case float64:
		if math.Trunc(v) == v && v >= MinClass && v <= MaxClass {
			*out = append(*out, int(v))
		}
	case int:
		*out = append(*out, v)
	case int64:
		*out = append(*out, int(v))
	}
}

func (s ClassSet) Empty() bool {
	return len(s) == 0
}

func (s ClassSet) Contains(class int) bool {
	_, found := slices.BinarySearch(s, class)
	return found
}

func (s ClassSet) Intersects(other ClassSet) bool {
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] == other[j]:
			return true
		case s[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return false
}

func (s ClassSet) Union(other ClassSet) ClassSet {
	merged := make([]int, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewClassSet(merged...)
}

// String renders the comma-separated storage form, e.g. "32,33".
func (s ClassSet) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

func (s ClassSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// UnmarshalJSON accepts [32, "33"], "32, 33", 32 or null.
func (s *ClassSet) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("decode nice classes: %w", err)
	}
	*s = Parse(raw)
	return nil
}

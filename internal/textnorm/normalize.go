package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// minStemRunes keeps suffix stripping from reducing a token to a fragment.
const minStemRunes = 3

// Forms carries both renditions of a name. Light keeps every token and is
// used for literal substring and prefix checks; Normalized may have generic
// business words removed and is what the scorer compares.
type Forms struct {
	Raw        string `json:"raw"`
	Light      string `json:"light"`
	Normalized string `json:"normalized"`
}

var turkishLetters = map[rune]rune{
	'ç': 'c',
	'ğ': 'g',
	'ı': 'i',
	'ö': 'o',
	'ş': 's',
	'ü': 'u',
}

var ligatures = map[rune]string{
	'ß': "ss",
	'æ': "ae",
	'œ': "oe",
	'ø': "o",
	'ł': "l",
	'đ': "d",
	'þ': "th",
}

// Prepare builds both forms of a name. Generic words are only removed from
// multi-word names so a mark called "Holding" still matches itself.
func Prepare(raw string) Forms {
	light := Light(raw)
	normalized := light
	if len(strings.Fields(light)) > 1 {
		normalized = stripGeneric(light)
	}
	return Forms{Raw: raw, Light: light, Normalized: normalized}
}

// Normalize folds the input and optionally removes generic business words.
func Normalize(input string, removeGeneric bool) string {
	light := Light(input)
	if !removeGeneric {
		return light
	}
	return stripGeneric(light)
}

// Light lower-cases with Turkish rules (I -> ı, İ -> i), keeps a-z, digits
// and the Turkish letters, folds other accented letters to their base and
// drops everything else. Whitespace runs collapse to one space.
func Light(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	// Compose first so a decomposed "s" + cedilla survives as "ş".
	lowered := cases.Lower(language.Turkish).String(norm.NFC.String(input))

	var b strings.Builder
	b.Grow(len(lowered))
	lastSpace := true
	for _, r := range lowered {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case isKept(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if folded := foldForeign(r); folded != "" {
				b.WriteString(folded)
				lastSpace = false
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Transliterate maps a name onto plain ASCII letters and digits, used for
// phonetic comparison.
func Transliterate(input string) string {
	light := Light(input)
	if light == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(light))
	for _, r := range light {
		if ascii, ok := turkishLetters[r]; ok {
			b.WriteRune(ascii)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsGeneric reports whether a light-form token is a generic business word,
// either as written or after stripping one plural/possessive suffix.
func IsGeneric(token string) bool {
	if token == "" {
		return false
	}
	if _, ok := genericWords[token]; ok {
		return true
	}
	if stem, ok := stripSuffix(token); ok {
		if _, ok := genericWords[stem]; ok {
			return true
		}
	}
	return false
}

func stripGeneric(light string) string {
	tokens := strings.Fields(light)
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if IsGeneric(token) {
			continue
		}
		kept = append(kept, token)
	}
	if len(kept) == 0 {
		// every word was generic; the name itself is the mark
		return light
	}
	return strings.Join(kept, " ")
}

func stripSuffix(token string) (string, bool) {
	for _, suffix := range nounSuffixes {
		if !strings.HasSuffix(token, suffix) {
			continue
		}
		stem := strings.TrimSuffix(token, suffix)
		if len([]rune(stem)) < minStemRunes {
			continue
		}
		return stem, true
	}
	return "", false
}

func isKept(r rune) bool {
	if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
		return true
	}
	_, ok := turkishLetters[r]
	return ok
}

func foldForeign(r rune) string {
	if lig, ok := ligatures[r]; ok {
		return lig
	}
	if r < unicode.MaxASCII {
		return ""
	}

	var b strings.Builder
	for _, d := range norm.NFD.String(string(r)) {
		if (d >= 'a' && d <= 'z') || (d >= '0' && d <= '9') {
			b.WriteRune(d)
		}
	}
	return b.String()
}

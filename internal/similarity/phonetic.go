package similarity

import (
	"strings"

	"horse.fit/markwatch/internal/textnorm"
)

// phoneticCodes groups consonants that sound alike in Turkish and English
// brand names. Vowels and soft letters are dropped after the first position.
var phoneticCodes = map[rune]string{
	'b': "b", 'p': "b",
	'c': "c", 'j': "c",
	's': "s", 'z': "s",
	'd': "t", 't': "t",
	'f': "f", 'v': "f", 'w': "f",
	'g': "k", 'k': "k", 'q': "k",
	'x': "ks",
	'l': "l",
	'r': "r",
	'm': "n", 'n': "n",
}

// phoneticSkeleton reduces a raw name to its consonant skeleton. A leading
// vowel is kept as "a" so "Efes" and "Fes" stay distinguishable.
func phoneticSkeleton(raw string) string {
	ascii := textnorm.Transliterate(raw)
	if ascii == "" {
		return ""
	}

	var b strings.Builder
	var last string
	first := true
	for _, r := range ascii {
		if r < 'a' || r > 'z' {
			continue
		}
		code, ok := phoneticCodes[r]
		if !ok {
			if first {
				b.WriteByte('a')
			}
			first = false
			last = ""
			continue
		}
		first = false
		if code == last {
			continue
		}
		b.WriteString(code)
		last = code
	}
	return b.String()
}

func phoneticSimilarity(rawA, rawB string) float64 {
	a := []rune(phoneticSkeleton(rawA))
	b := []rune(phoneticSkeleton(rawB))
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return editSimilarity(a, b)
}

// Package similarity scores how alike two trademark names are. All functions
// are pure and safe for concurrent use.
package similarity

import (
	"math"
	"strings"
)

const (
	// WordMatchThreshold short-circuits scoring when any word pair is this close.
	WordMatchThreshold = 0.70

	prefixRunes         = 3
	minMeaningfulWord   = 2
	weightEdit          = 0.35
	weightJaroWinkler   = 0.25
	weightBigram        = 0.15
	weightVisual        = 0.15
	weightPrefix        = 0.10
	weightPhonetic      = 0.10
	weightNameComponent = 1 - weightPhonetic
)

// Breakdown exposes every component for diagnostics.
type Breakdown struct {
	Edit         float64 `json:"edit"`
	JaroWinkler  float64 `json:"jaro_winkler"`
	Bigram       float64 `json:"bigram"`
	Visual       float64 `json:"visual"`
	Prefix       float64 `json:"prefix"`
	Phonetic     float64 `json:"phonetic"`
	WordLevel    float64 `json:"word_level"`
	ShortCircuit bool    `json:"short_circuit"`
	Score        float64 `json:"score"`
	Positional   float64 `json:"positional"`
}

// Score compares a search term against a bulletin name. The raw names feed
// the phonetic component; the normalized names feed everything else. It
// returns the final score and the positional exact-match score, both in [0,1].
func Score(termRaw, hitRaw, termNorm, hitNorm string) (float64, float64) {
	if termNorm == "" || hitNorm == "" {
		return 0, 0
	}
	if termNorm == hitNorm {
		return 1, 1
	}

	a := []rune(termNorm)
	b := []rune(hitNorm)
	positional := positionalMatch(a, b)

	if word, ok := wordLevelMatch(termNorm, hitNorm); ok {
		return clamp01(word), positional
	}

	return blend(a, b, termRaw, hitRaw), positional
}

// Explain computes every component, including those Score skips after a
// word-level short-circuit.
func Explain(termRaw, hitRaw, termNorm, hitNorm string) Breakdown {
	var out Breakdown
	out.Score, out.Positional = Score(termRaw, hitRaw, termNorm, hitNorm)
	if termNorm == "" || hitNorm == "" {
		return out
	}

	a := []rune(termNorm)
	b := []rune(hitNorm)
	out.Edit = editSimilarity(a, b)
	out.JaroWinkler = jaroWinkler(a, b)
	out.Bigram = bigramOverlap(a, b)
	out.Visual = visualSimilarity(a, b)
	out.Prefix = prefixSimilarity(a, b)
	out.Phonetic = phoneticSimilarity(termRaw, hitRaw)
	out.WordLevel, out.ShortCircuit = wordLevelMatch(termNorm, hitNorm)
	if termNorm == hitNorm {
		out.ShortCircuit = false
	}
	return out
}

// PositionalMatch reports 1 when the first min(len, 3) runes of both
// normalized names are identical.
func PositionalMatch(termNorm, hitNorm string) float64 {
	return positionalMatch([]rune(termNorm), []rune(hitNorm))
}

func positionalMatch(a, b []rune) float64 {
	n := min(len(a), len(b), prefixRunes)
	if n == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return 0
		}
	}
	return 1
}

func blend(a, b []rune, rawA, rawB string) float64 {
	name := weightEdit*editSimilarity(a, b) +
		weightJaroWinkler*jaroWinkler(a, b) +
		weightBigram*bigramOverlap(a, b) +
		weightVisual*visualSimilarity(a, b) +
		weightPrefix*prefixSimilarity(a, b)

	return clamp01(weightNameComponent*name + weightPhonetic*phoneticSimilarity(rawA, rawB))
}

func prefixSimilarity(a, b []rune) float64 {
	return editSimilarity(a[:min(len(a), prefixRunes)], b[:min(len(b), prefixRunes)])
}

// wordLevelMatch returns the best pairwise word similarity and whether it
// clears WordMatchThreshold. Identical one-letter words are ignored.
func wordLevelMatch(termNorm, hitNorm string) (float64, bool) {
	termWords := strings.Fields(termNorm)
	hitWords := strings.Fields(hitNorm)

	best := 0.0
	for _, tw := range termWords {
		tr := []rune(tw)
		for _, hw := range hitWords {
			hr := []rune(hw)
			if tw == hw && len(tr) < minMeaningfulWord {
				continue
			}
			if sim := editSimilarity(tr, hr); sim > best {
				best = sim
			}
		}
	}
	return best, best >= WordMatchThreshold
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case math.IsInf(v, 1), v > 1:
		return 1
	default:
		return v
	}
}

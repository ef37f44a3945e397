package similarity

import "unicode"

// bigramOverlap is |A ∩ B| / min(|A|, |B|) over character bigrams with
// whitespace removed.
func bigramOverlap(a, b []rune) float64 {
	left := bigramSet(a)
	right := bigramSet(b)
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	if len(left) > len(right) {
		left, right = right, left
	}

	shared := 0
	for gram := range left {
		if _, ok := right[gram]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(left))
}

func bigramSet(runes []rune) map[[2]rune]struct{} {
	compact := make([]rune, 0, len(runes))
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			compact = append(compact, r)
		}
	}
	if len(compact) < 2 {
		return nil
	}

	set := make(map[[2]rune]struct{}, len(compact)-1)
	for i := 0; i+1 < len(compact); i++ {
		set[[2]rune{compact[i], compact[i+1]}] = struct{}{}
	}
	return set
}

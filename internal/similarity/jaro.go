package similarity

import "slices"

const (
	jaroMaxWindow       = 8
	winklerPrefixLength = 4
	winklerScaling      = 0.1
)

// jaroWinkler orders its arguments canonically so the greedy match pass
// gives the same answer regardless of argument order.
func jaroWinkler(a, b []rune) float64 {
	if len(a) > len(b) || (len(a) == len(b) && slices.Compare(a, b) > 0) {
		a, b = b, a
	}
	if len(a) == 0 {
		return 0
	}

	window := max(len(a), len(b))/2 - 1
	window = max(0, min(window, jaroMaxWindow))

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0
	for i, r := range a {
		lo := max(0, i-window)
		hi := min(len(b)-1, i+window)
		for j := lo; j <= hi; j++ {
			if bMatched[j] || b[j] != r {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	jaro := (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3

	prefix := 0
	for prefix < winklerPrefixLength && prefix < len(a) && a[prefix] == b[prefix] {
		prefix++
	}
	return clamp01(jaro + float64(prefix)*winklerScaling*(1-jaro))
}

package similarity

import "sync"

// maxCompareRunes bounds the quadratic edit-distance components. Longer
// inputs score 0 for those components instead of burning the time budget.
const maxCompareRunes = 512

// Scratch rows are pooled per call so concurrent scorers never share state.
var (
	intRowPool   = sync.Pool{New: func() any { row := make([]int, 0, 64); return &row }}
	floatRowPool = sync.Pool{New: func() any { row := make([]float64, 0, 64); return &row }}
)

// levenshtein returns the unit-cost edit distance using two rolling rows.
func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	width := len(b) + 1
	rowp := intRowPool.Get().(*[]int)
	buf := *rowp
	if cap(buf) < 2*width {
		buf = make([]int, 2*width)
	}
	buf = buf[:2*width]
	defer func() {
		*rowp = buf
		intRowPool.Put(rowp)
	}()

	prev, curr := buf[:width], buf[width:]
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j < width; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[width-1]
}

// editSimilarity is 1 - distance/maxLen, or 0 beyond the safety bound.
func editSimilarity(a, b []rune) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1
	}
	if maxLen > maxCompareRunes {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// visualSimilarity is an edit similarity where substituting a visually
// confusable pair (o/0, g/q, ı/i, ...) costs visualSubstitutionCost.
func visualSimilarity(a, b []rune) float64 {
	if len(a) < len(b) {
		a, b = b, a
	}
	maxLen := len(a)
	if maxLen == 0 {
		return 1
	}
	if maxLen > maxCompareRunes {
		return 0
	}
	if len(b) == 0 {
		return 0
	}

	width := len(b) + 1
	rowp := floatRowPool.Get().(*[]float64)
	buf := *rowp
	if cap(buf) < 2*width {
		buf = make([]float64, 2*width)
	}
	buf = buf[:2*width]
	defer func() {
		*rowp = buf
		floatRowPool.Put(rowp)
	}()

	prev, curr := buf[:width], buf[width:]
	for j := range prev {
		prev[j] = float64(j)
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = float64(i)
		for j := 1; j < width; j++ {
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+substitutionCost(a[i-1], b[j-1]))
		}
		prev, curr = curr, prev
	}

	sim := 1 - prev[width-1]/float64(maxLen)
	return clamp01(sim)
}

package similarity

const visualSubstitutionCost = 0.25

type runePair struct {
	lo rune
	hi rune
}

func pairOf(a, b rune) runePair {
	if a > b {
		a, b = b, a
	}
	return runePair{lo: a, hi: b}
}

// Pairs that read alike in print or in a logo. Keys are order-independent.
var visualConfusions = func() map[runePair]struct{} {
	pairs := [][2]rune{
		{'o', '0'}, {'o', 'ö'}, {'ö', '0'},
		{'i', '1'}, {'l', '1'}, {'i', 'l'}, {'ı', 'i'}, {'ı', 'l'}, {'ı', '1'},
		{'s', '5'}, {'s', 'ş'}, {'c', 'ç'}, {'g', 'ğ'}, {'u', 'ü'},
		{'g', 'q'}, {'q', '9'}, {'g', '9'}, {'p', 'q'}, {'b', 'd'},
		{'b', '8'}, {'z', '2'}, {'e', '3'}, {'a', '4'}, {'t', '7'},
		{'u', 'v'}, {'v', 'w'}, {'m', 'n'}, {'c', 'e'}, {'h', 'n'},
	}
	out := make(map[runePair]struct{}, len(pairs))
	for _, p := range pairs {
		out[pairOf(p[0], p[1])] = struct{}{}
	}
	return out
}()

func substitutionCost(a, b rune) float64 {
	if a == b {
		return 0
	}
	if _, ok := visualConfusions[pairOf(a, b)]; ok {
		return visualSubstitutionCost
	}
	return 1
}

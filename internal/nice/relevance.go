package nice

// Tier names the class set that admitted a record.
type Tier string

const (
	TierNone    Tier = ""
	TierOwn     Tier = "own"
	TierWatched Tier = "watched"
	TierRelated Tier = "related"
	TierBypass  Tier = "bypass"
)

// adjacentClasses lists commercially related classes. Edges are mirrored
// when the table is built, so each pair only needs to appear once.
var adjacentClasses = map[int][]int{
	3:  {5, 21, 44},
	5:  {10, 44},
	9:  {38, 42},
	10: {44},
	12: {37, 39},
	14: {18, 25},
	18: {25},
	25: {26},
	29: {30, 31, 43},
	30: {31, 32, 43},
	31: {44},
	32: {33, 43},
	33: {43},
	37: {39},
	38: {42},
}

var adjacency = buildAdjacency(adjacentClasses)

func buildAdjacency(edges map[int][]int) map[int]ClassSet {
	out := make(map[int][]int, len(edges)*2)
	for from, tos := range edges {
		for _, to := range tos {
			out[from] = append(out[from], to)
			out[to] = append(out[to], from)
		}
	}
	table := make(map[int]ClassSet, len(out))
	for class, neighbours := range out {
		table[class] = NewClassSet(neighbours...)
	}
	return table
}

// Adjacent returns the classes directly related to class.
func Adjacent(class int) ClassSet {
	return adjacency[class]
}

// Related expands own by one hop through the adjacency table.
func Related(own ClassSet) ClassSet {
	var out ClassSet
	for _, class := range own {
		out = out.Union(adjacency[class])
	}
	return out
}

// Filter decides whether a bulletin record's classes are relevant to one
// monitored mark. Build it once per mark and reuse it for every record.
type Filter struct {
	own     ClassSet
	watched ClassSet
	related ClassSet
	bypass  bool
}

func NewFilter(own, watched ClassSet) Filter {
	own = NewClassSet(own...)
	watched = NewClassSet(watched...)
	return Filter{
		own:     own,
		watched: watched,
		related: Related(own),
		bypass:  own.Empty() && watched.Empty(),
	}
}

// Match reports the tier that admits record, preferring own over watched
// over related. A mark without any classes admits everything.
func (f Filter) Match(record ClassSet) (Tier, bool) {
	switch {
	case f.bypass:
		return TierBypass, true
	case f.own.Intersects(record):
		return TierOwn, true
	case f.watched.Intersects(record):
		return TierWatched, true
	case f.related.Intersects(record):
		return TierRelated, true
	default:
		return TierNone, false
	}
}

func (f Filter) Eligible(record ClassSet) bool {
	_, ok := f.Match(record)
	return ok
}

package nice

import "testing"

func TestAdjacencyIsSymmetric(t *testing.T) {
	t.Parallel()

	for class, neighbours := range adjacency {
		for _, n := range neighbours {
			if !Adjacent(n).Contains(class) {
				t.Fatalf("adjacency not symmetric: %d -> %d", class, n)
			}
		}
	}
	if !Adjacent(32).Contains(33) || !Adjacent(33).Contains(32) {
		t.Fatalf("expected 32 and 33 to be adjacent")
	}
}

func TestFilterBypassWithoutClasses(t *testing.T) {
	t.Parallel()

	f := NewFilter(nil, nil)
	tier, ok := f.Match(ClassSet{9})
	if !ok || tier != TierBypass {
		t.Fatalf("unexpected match: got (%q, %v) want (%q, true)", tier, ok, TierBypass)
	}
	if !f.Eligible(nil) {
		t.Fatalf("expected bypass to admit records without classes")
	}
}

func TestFilterRelatedClassIsEligible(t *testing.T) {
	t.Parallel()

	f := NewFilter(ClassSet{32}, nil)

	tier, ok := f.Match(ClassSet{33})
	if !ok || tier != TierRelated {
		t.Fatalf("unexpected match for 33: got (%q, %v) want (%q, true)", tier, ok, TierRelated)
	}
	if f.Eligible(ClassSet{9}) {
		t.Fatalf("did not expect class 9 to be eligible for own class 32")
	}
	if f.Eligible(nil) {
		t.Fatalf("did not expect a record without classes to be eligible")
	}
}

func TestFilterTierPreference(t *testing.T) {
	t.Parallel()

	f := NewFilter(ClassSet{39}, ClassSet{9})

	tests := []struct {
		record ClassSet
		want   Tier
	}{
		{record: ClassSet{39, 9}, want: TierOwn},
		{record: ClassSet{9}, want: TierWatched},
		{record: ClassSet{12}, want: TierRelated},
	}
	for _, tc := range tests {
		tier, ok := f.Match(tc.record)
		if !ok || tier != tc.want {
			t.Fatalf("unexpected tier for %v: got (%q, %v) want %q", tc.record, tier, ok, tc.want)
		}
	}
}

func TestFilterWatchedOnlyDisablesBypass(t *testing.T) {
	t.Parallel()

	f := NewFilter(nil, ClassSet{25})
	if f.Eligible(ClassSet{9}) {
		t.Fatalf("did not expect class 9 to be eligible when only 25 is watched")
	}
	if !f.Eligible(ClassSet{25}) {
		t.Fatalf("expected watched class to be eligible")
	}
}

func TestFilterAcceptsUnsortedClassSets(t *testing.T) {
	t.Parallel()

	f := NewFilter(ClassSet{39, 12}, ClassSet{35, 9})

	if tier, ok := f.Match(ClassSet{12}); !ok || tier != TierOwn {
		t.Fatalf("unexpected match for 12: got (%q, %v) want (%q, true)", tier, ok, TierOwn)
	}
	if tier, ok := f.Match(ClassSet{9}); !ok || tier != TierWatched {
		t.Fatalf("unexpected match for 9: got (%q, %v) want (%q, true)", tier, ok, TierWatched)
	}
}

package causalgraph

import (
	"errors"
	"reflect"
	"testing"
)

// buildMergeGraph constructs a small graph with two independent two-change
// agent runs merged by a third agent:
//
//	a: LV0 -> LV1            (seq 0,1, no parents)
//	b: LV2 -> LV3            (seq 0,1, no parents)
//	c: LV4, parents [1, 3]   (merges a and b)
func buildMergeGraph(t *testing.T) *CausalGraph {
	t.Helper()
	cg := CreateCG()
	if _, err := cg.Add("a", 0, 2, nil); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if _, err := cg.Add("b", 0, 2, nil); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if _, err := cg.Add("c", 0, 1, []LV{1, 3}); err != nil {
		t.Fatalf("Add c: %v", err)
	}
	return cg
}

func TestAddAssignsDenseLVsAndTracksHeads(t *testing.T) {
	cg := buildMergeGraph(t)

	if got := cg.NextLV(); got != 5 {
		t.Fatalf("NextLV() = %d, want 5", got)
	}
	if got := cg.Heads(); !reflect.DeepEqual(got, []LV{4}) {
		t.Fatalf("Heads() = %v, want [4]", got)
	}
	if err := Check(cg); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestAddIsIdempotentOnFullDuplicate(t *testing.T) {
	cg := CreateCG()
	if _, err := cg.Add("a", 0, 3, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	before := cg.NextLV()

	e, err := cg.Add("a", 0, 3, nil)
	if err != nil {
		t.Fatalf("duplicate Add: %v", err)
	}
	if e != nil {
		t.Fatalf("duplicate Add returned %+v, want nil", e)
	}
	if got := cg.NextLV(); got != before {
		t.Fatalf("NextLV() changed on duplicate Add: %d -> %d", before, got)
	}
}

func TestAddResumesAfterKnownPrefix(t *testing.T) {
	cg := CreateCG()
	if _, err := cg.Add("a", 0, 3, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e, err := cg.Add("a", 0, 5, nil)
	if err != nil {
		t.Fatalf("extending Add: %v", err)
	}
	if e == nil {
		t.Fatalf("extending Add returned nil, want a new entry")
	}
	if e.Seq != 3 || e.VEnd-e.Version != 2 {
		t.Fatalf("extending entry = %+v, want Seq 3 covering 2 changes", e)
	}
	if !reflect.DeepEqual(e.Parents, []LV{2}) {
		t.Fatalf("extending entry parents = %v, want [2] (continuing the known prefix)", e.Parents)
	}
	if err := Check(cg); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestAddRejectsEmptyRange(t *testing.T) {
	cg := CreateCG()
	_, err := cg.Add("a", 3, 3, nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Add(3,3) error = %v, want ErrInvalidArgument", err)
	}
}

func TestAddPubDefaultsParentsToHeads(t *testing.T) {
	cg := CreateCG()
	if _, err := cg.AddPub(PubVersion{"a", 0}, 2, nil); err != nil {
		t.Fatalf("AddPub a: %v", err)
	}
	e, err := cg.AddPub(PubVersion{"b", 0}, 1, nil)
	if err != nil {
		t.Fatalf("AddPub b: %v", err)
	}
	if !reflect.DeepEqual(e.Parents, []LV{1}) {
		t.Fatalf("AddPub with nil parents = %v, want current heads [1]", e.Parents)
	}
}

func TestPubToLVRoundTrip(t *testing.T) {
	cg := buildMergeGraph(t)

	lv, err := cg.PubToLV("b", 1)
	if err != nil {
		t.Fatalf("PubToLV: %v", err)
	}
	if lv != 3 {
		t.Fatalf("PubToLV(b,1) = %d, want 3", lv)
	}

	pv, err := cg.LVToPub(3)
	if err != nil {
		t.Fatalf("LVToPub: %v", err)
	}
	if pv != (PubVersion{"b", 1}) {
		t.Fatalf("LVToPub(3) = %+v, want {b 1}", pv)
	}

	if _, ok := cg.TryPubToLV("z", 0); ok {
		t.Fatalf("TryPubToLV(z,0) ok = true, want false for unknown agent")
	}
}

func TestLVToPubWithParents(t *testing.T) {
	cg := buildMergeGraph(t)

	_, parents, err := cg.LVToPubWithParents(1)
	if err != nil {
		t.Fatalf("LVToPubWithParents(1): %v", err)
	}
	if !reflect.DeepEqual(parents, []LV{0}) {
		t.Fatalf("LVToPubWithParents(1) parents = %v, want [0] (implicit run predecessor)", parents)
	}

	_, parents, err = cg.LVToPubWithParents(4)
	if err != nil {
		t.Fatalf("LVToPubWithParents(4): %v", err)
	}
	if !reflect.DeepEqual(parents, []LV{1, 3}) {
		t.Fatalf("LVToPubWithParents(4) parents = %v, want [1 3] (stored merge parents)", parents)
	}
}

func TestSummarizeMatchesClientIndex(t *testing.T) {
	cg := buildMergeGraph(t)
	got := cg.Summarize()
	want := VersionSummary{
		"a": [][2]uint64{{0, 2}},
		"b": [][2]uint64{{0, 2}},
		"c": [][2]uint64{{0, 1}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestContainsLVSelfIsAlwaysTrue(t *testing.T) {
	cg := buildMergeGraph(t)
	for v := LV(0); v < cg.NextLV(); v++ {
		ok, err := cg.ContainsLV([]LV{v}, v)
		if err != nil {
			t.Fatalf("ContainsLV(%d,%d): %v", v, v, err)
		}
		if !ok {
			t.Fatalf("ContainsLV([%d], %d) = false, want true", v, v)
		}
	}
}

func TestContainsLVAcrossMerge(t *testing.T) {
	cg := buildMergeGraph(t)

	cases := []struct {
		frontier LV
		target   LV
		want     bool
	}{
		{4, 1, true},  // merge sees a's history
		{4, 3, true},  // merge sees b's history
		{1, 3, false}, // a's branch never saw b's branch
		{3, 1, false},
	}
	for _, c := range cases {
		got, err := cg.ContainsLV([]LV{c.frontier}, c.target)
		if err != nil {
			t.Fatalf("ContainsLV([%d], %d): %v", c.frontier, c.target, err)
		}
		if got != c.want {
			t.Fatalf("ContainsLV([%d], %d) = %v, want %v", c.frontier, c.target, got, c.want)
		}
	}
}

func TestCompareVersionsRejectsEqualInputs(t *testing.T) {
	cg := buildMergeGraph(t)
	if _, err := cg.CompareVersions(2, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("CompareVersions(2,2) error = %v, want ErrInvalidArgument", err)
	}
}

func TestCompareVersionsAncestorAndConcurrent(t *testing.T) {
	cg := buildMergeGraph(t)

	rel, err := cg.CompareVersions(4, 1)
	if err != nil {
		t.Fatalf("CompareVersions(4,1): %v", err)
	}
	if rel != -1 {
		t.Fatalf("CompareVersions(4,1) = %d, want -1 (4 follows 1)", rel)
	}

	rel, err = cg.CompareVersions(1, 4)
	if err != nil {
		t.Fatalf("CompareVersions(1,4): %v", err)
	}
	if rel != 1 {
		t.Fatalf("CompareVersions(1,4) = %d, want 1", rel)
	}

	rel, err = cg.CompareVersions(1, 3)
	if err != nil {
		t.Fatalf("CompareVersions(1,3): %v", err)
	}
	if rel != 0 {
		t.Fatalf("CompareVersions(1,3) = %d, want 0 (concurrent)", rel)
	}
}

func TestFindDominatorsDropsDominatedInputs(t *testing.T) {
	cg := buildMergeGraph(t)

	got, err := cg.FindDominators([]LV{1, 3, 4})
	if err != nil {
		t.Fatalf("FindDominators: %v", err)
	}
	if !reflect.DeepEqual(got, []LV{4}) {
		t.Fatalf("FindDominators([1,3,4]) = %v, want [4]", got)
	}

	got, err = cg.FindDominators([]LV{1, 3})
	if err != nil {
		t.Fatalf("FindDominators: %v", err)
	}
	if !reflect.DeepEqual(got, []LV{1, 3}) {
		t.Fatalf("FindDominators([1,3]) = %v, want [1,3] (concurrent, both dominate)", got)
	}
}

func TestDiffDisjointHistories(t *testing.T) {
	cg := buildMergeGraph(t)

	aOnly, bOnly, err := cg.Diff([]LV{1}, []LV{3})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !reflect.DeepEqual(aOnly, []LVRange{{0, 2}}) {
		t.Fatalf("Diff aOnly = %v, want [{0 2}]", aOnly)
	}
	if !reflect.DeepEqual(bOnly, []LVRange{{2, 4}}) {
		t.Fatalf("Diff bOnly = %v, want [{2 4}]", bOnly)
	}
}

func TestDiffSharedPrefix(t *testing.T) {
	cg := CreateCG()
	if _, err := cg.Add("a", 0, 2, nil); err != nil { // LV0,1 shared base
		t.Fatalf("Add: %v", err)
	}
	if _, err := cg.Add("x", 0, 1, []LV{1}); err != nil { // LV2
		t.Fatalf("Add: %v", err)
	}
	if _, err := cg.Add("y", 0, 1, []LV{1}); err != nil { // LV3
		t.Fatalf("Add: %v", err)
	}

	aOnly, bOnly, err := cg.Diff([]LV{2}, []LV{3})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !reflect.DeepEqual(aOnly, []LVRange{{2, 3}}) {
		t.Fatalf("Diff aOnly = %v, want [{2 3}]", aOnly)
	}
	if !reflect.DeepEqual(bOnly, []LVRange{{3, 4}}) {
		t.Fatalf("Diff bOnly = %v, want [{3 4}]", bOnly)
	}
}

func TestFindConflictingVisitsDisjointRangesWithNoCommonAncestor(t *testing.T) {
	cg := buildMergeGraph(t)

	var aRanges, bRanges []LVRange
	common, err := cg.FindConflicting([]LV{1}, []LV{3}, func(r LVRange, side ConflictSide) {
		switch side {
		case ConflictSideA:
			aRanges = append(aRanges, r)
		case ConflictSideB:
			bRanges = append(bRanges, r)
		}
	})
	if err != nil {
		t.Fatalf("FindConflicting: %v", err)
	}
	if !reflect.DeepEqual(aRanges, []LVRange{{0, 2}}) {
		t.Fatalf("FindConflicting A ranges = %v, want [{0 2}]", aRanges)
	}
	if !reflect.DeepEqual(bRanges, []LVRange{{2, 4}}) {
		t.Fatalf("FindConflicting B ranges = %v, want [{2 4}]", bRanges)
	}
	if len(common) != 0 {
		t.Fatalf("FindConflicting common = %v, want empty (no shared ancestry)", common)
	}
}

func TestFindConflictingReturnsSharedBase(t *testing.T) {
	cg := CreateCG()
	if _, err := cg.Add("a", 0, 2, nil); err != nil { // LV0,1
		t.Fatalf("Add: %v", err)
	}
	if _, err := cg.Add("x", 0, 1, []LV{1}); err != nil { // LV2
		t.Fatalf("Add: %v", err)
	}
	if _, err := cg.Add("y", 0, 1, []LV{1}); err != nil { // LV3
		t.Fatalf("Add: %v", err)
	}

	common, err := cg.FindConflicting([]LV{2}, []LV{3}, func(LVRange, ConflictSide) {})
	if err != nil {
		t.Fatalf("FindConflicting: %v", err)
	}
	if !reflect.DeepEqual(common, []LV{1}) {
		t.Fatalf("FindConflicting common = %v, want [1]", common)
	}
}

func TestIntersectWithSummary(t *testing.T) {
	cg := buildMergeGraph(t)

	remote := VersionSummary{
		"a": [][2]uint64{{0, 2}},
		"b": [][2]uint64{{0, 1}}, // only half of b is known remotely
		"z": [][2]uint64{{0, 3}}, // agent we've never heard of
	}

	common, remoteOnly, err := cg.IntersectWithSummary(remote)
	if err != nil {
		t.Fatalf("IntersectWithSummary: %v", err)
	}
	if !reflect.DeepEqual(common, []LV{1, 2}) {
		t.Fatalf("common = %v, want [1,2] (a's full run at LV1 and b's first change at LV2 are concurrent boundaries)", common)
	}
	want := VersionSummary{"z": [][2]uint64{{0, 3}}}
	if !reflect.DeepEqual(remoteOnly, want) {
		t.Fatalf("remoteOnly = %+v, want %+v", remoteOnly, want)
	}
}

func TestAdvanceFrontierRemovesSupersededParents(t *testing.T) {
	got := AdvanceFrontier([]LV{1, 3}, 4, []LV{1, 3})
	if !reflect.DeepEqual(got, []LV{4}) {
		t.Fatalf("AdvanceFrontier = %v, want [4]", got)
	}

	got = AdvanceFrontier([]LV{1, 3}, 5, []LV{3})
	if !reflect.DeepEqual(got, []LV{1, 5}) {
		t.Fatalf("AdvanceFrontier = %v, want [1,5]", got)
	}
}

func TestPubVersionCmpAndLVCmp(t *testing.T) {
	if PubVersionCmp(PubVersion{"a", 5}, PubVersion{"b", 0}) >= 0 {
		t.Fatalf("PubVersionCmp should order by agent first")
	}
	if PubVersionCmp(PubVersion{"a", 1}, PubVersion{"a", 2}) >= 0 {
		t.Fatalf("PubVersionCmp should order by seq within an agent")
	}
	if LVCmp(1, 2) >= 0 || LVCmp(2, 1) <= 0 || LVCmp(1, 1) != 0 {
		t.Fatalf("LVCmp basic ordering broken")
	}
}

func TestCheckDetectsStaleHeads(t *testing.T) {
	cg := buildMergeGraph(t)
	cg.heads = []LV{1, 3} // stale: pre-merge frontier, no longer the true dominator set
	if err := Check(cg); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Check with stale heads error = %v, want ErrInvariantViolation", err)
	}
}

package causalgraph

import (
	"container/heap"
	"fmt"
)

// lvHeap is a max-heap of local versions, used by every traversal below to
// always process the highest-numbered outstanding version first — the only
// order in which "every parent is smaller than its child" lets a single
// backward pass see each version's full set of children before descending
// past it.
type lvHeap []LV

func (h lvHeap) Len() int            { return len(h) }
func (h lvHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h lvHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *lvHeap) Push(x interface{}) { *h = append(*h, x.(LV)) }
func (h *lvHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// ContainsLV reports whether target is a member of frontier or a causal
// ancestor of some version in frontier.
func (cg *CausalGraph) ContainsLV(frontier []LV, target LV) (bool, error) {
	h := &lvHeap{}
	heap.Init(h)
	for _, v := range frontier {
		switch {
		case v == target:
			return true, nil
		case v > target:
			heap.Push(h, v)
		}
	}

	for h.Len() > 0 {
		v := heap.Pop(h).(LV)
		e, _, err := cg.FindEntryContaining(v)
		if err != nil {
			return false, fmt.Errorf("causalgraph: ContainsLV: %w", err)
		}
		if e.Version <= target {
			return true, nil
		}
		for h.Len() > 0 && (*h)[0] >= e.Version {
			heap.Pop(h)
		}
		for _, p := range e.Parents {
			switch {
			case p == target:
				return true, nil
			case p > target:
				heap.Push(h, p)
			}
		}
	}
	return false, nil
}

// CompareVersions returns -1 if a is a causal descendant of b, +1 if b is a
// causal descendant of a, or 0 if the two are concurrent. a and b must be
// distinct.
func (cg *CausalGraph) CompareVersions(a, b LV) (int, error) {
	if a == b {
		return 0, fmt.Errorf("causalgraph: CompareVersions(%d, %d): %w", a, b, ErrInvalidArgument)
	}
	aAfterB, err := cg.ContainsLV([]LV{a}, b)
	if err != nil {
		return 0, fmt.Errorf("causalgraph: CompareVersions: %w", err)
	}
	if aAfterB {
		return -1, nil
	}
	bAfterA, err := cg.ContainsLV([]LV{b}, a)
	if err != nil {
		return 0, fmt.Errorf("causalgraph: CompareVersions: %w", err)
	}
	if bAfterA {
		return 1, nil
	}
	return 0, nil
}

// domItem tags a queued LV as either one of the original inputs or a
// parent reached while tracing an input's ancestry.
type domItem struct {
	v       LV
	isInput bool
}

type domHeap []domItem

func (h domHeap) Len() int { return len(h) }
func (h domHeap) Less(i, j int) bool {
	if h[i].v != h[j].v {
		return h[i].v > h[j].v
	}
	return !h[i].isInput && h[j].isInput
}
func (h domHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *domHeap) Push(x interface{}) { *h = append(*h, x.(domItem)) }
func (h *domHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// FindDominators returns the subset of lvs that is not reachable from any
// other element of lvs, sorted ascending — the maximal elements of lvs
// under the causal order. Duplicate inputs are collapsed.
func (cg *CausalGraph) FindDominators(lvs []LV) ([]LV, error) {
	if len(lvs) == 0 {
		return nil, nil
	}

	h := &domHeap{}
	heap.Init(h)
	seen := make(map[LV]bool, len(lvs))
	remaining := 0
	for _, v := range lvs {
		if seen[v] {
			continue
		}
		seen[v] = true
		heap.Push(h, domItem{v, true})
		remaining++
	}

	var dominators []LV
	for remaining > 0 {
		if h.Len() == 0 {
			return nil, fmt.Errorf("causalgraph: FindDominators: ran out of ancestry with %d input(s) unresolved: %w", remaining, ErrInvariantViolation)
		}
		top := heap.Pop(h).(domItem)
		if top.isInput {
			dominators = append(dominators, top.v)
			remaining--
		}

		e, _, err := cg.FindEntryContaining(top.v)
		if err != nil {
			return nil, fmt.Errorf("causalgraph: FindDominators: %w", err)
		}

		for h.Len() > 0 && (*h)[0].v >= e.Version {
			drained := heap.Pop(h).(domItem)
			if drained.isInput {
				remaining--
			}
		}

		for _, p := range e.Parents {
			heap.Push(h, domItem{p, false})
		}
	}

	sortLVsAsc(dominators)
	return dominators, nil
}

// diffLabel tags a queued LV with which side(s) of a Diff/FindConflicting
// scan it was reached from.
type diffLabel int

const (
	diffLabelA diffLabel = iota
	diffLabelB
	diffLabelShared
)

func mergeDiffLabel(a, b diffLabel) diffLabel {
	if a == b {
		return a
	}
	return diffLabelShared
}

type diffItem struct {
	v   LV
	lbl diffLabel
}

type diffHeap []diffItem

func (h diffHeap) Len() int            { return len(h) }
func (h diffHeap) Less(i, j int) bool  { return h[i].v > h[j].v }
func (h diffHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *diffHeap) Push(x interface{}) { *h = append(*h, x.(diffItem)) }
func (h *diffHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// diffScan is the shared tri-state traversal behind both Diff and
// FindConflicting: it walks the ancestry of a (labelled A) and b (labelled
// B) simultaneously, merging labels whenever two paths land in the same CG
// run, and stops descending past any point both sides have reached —
// everything below a shared point is shared too. visit is called, in
// descending LV order, once per LV range reached from only one side; a run
// reached from one side above the point where the other side joins it is
// split there. The final return value is the common ancestor frontier: the
// dominators of the shared points reached (the top of each shared run
// segment, plus the shared items still queued when the scan stops), or
// empty if the two sides share no ancestry.
func (cg *CausalGraph) diffScan(a, b []LV, visit func(LVRange, diffLabel)) ([]LV, error) {
	h := &diffHeap{}
	heap.Init(h)
	numShared := 0
	var shared []LV
	for _, v := range a {
		heap.Push(h, diffItem{v, diffLabelA})
	}
	for _, v := range b {
		heap.Push(h, diffItem{v, diffLabelB})
	}

	for h.Len() > numShared {
		top := heap.Pop(h).(diffItem)
		if top.lbl == diffLabelShared {
			numShared--
		}
		lbl := top.lbl
		v := top.v

		e, _, err := cg.FindEntryContaining(v)
		if err != nil {
			return nil, fmt.Errorf("causalgraph: diffScan: %w", err)
		}

		for h.Len() > 0 && (*h)[0].v >= e.Version {
			item := heap.Pop(h).(diffItem)
			if item.lbl == diffLabelShared {
				numShared--
			}
			if merged := mergeDiffLabel(lbl, item.lbl); merged != lbl {
				// (item.v, v] was reached only from lbl's side.
				if item.v < v {
					visit(LVRange{Start: item.v + 1, End: v + 1}, lbl)
				}
				v = item.v
				lbl = merged
			}
		}

		if lbl == diffLabelShared {
			shared = append(shared, v)
		} else {
			visit(LVRange{Start: e.Version, End: v + 1}, lbl)
		}

		for _, p := range e.Parents {
			heap.Push(h, diffItem{p, lbl})
			if lbl == diffLabelShared {
				numShared++
			}
		}
	}

	for _, item := range *h {
		shared = append(shared, item.v)
	}
	common, err := cg.FindDominators(shared)
	if err != nil {
		return nil, fmt.Errorf("causalgraph: diffScan: %w", err)
	}
	return common, nil
}

// reverseRanges merges adjacent ranges produced in descending order (where
// consecutive ranges abut, r2.End == r1.Start) and reverses the result to
// ascending order.
func reverseRanges(ranges []LVRange) []LVRange {
	if len(ranges) == 0 {
		return nil
	}
	merged := []LVRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.End == last.Start {
			last.Start = r.Start
		} else {
			merged = append(merged, r)
		}
	}
	for i, j := 0, len(merged)-1; i < j; i, j = i+1, j-1 {
		merged[i], merged[j] = merged[j], merged[i]
	}
	return merged
}

// Diff computes the symmetric difference of the ancestry of a and b: the
// versions known only to a's history and only to b's history, each as
// ascending, RLE-merged ranges.
func (cg *CausalGraph) Diff(a, b []LV) (aOnly, bOnly []LVRange, err error) {
	var rawA, rawB []LVRange
	_, err = cg.diffScan(a, b, func(r LVRange, lbl diffLabel) {
		switch lbl {
		case diffLabelA:
			rawA = append(rawA, r)
		case diffLabelB:
			rawB = append(rawB, r)
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("causalgraph: Diff: %w", err)
	}
	return reverseRanges(rawA), reverseRanges(rawB), nil
}

// ConflictSide identifies which of the two input frontiers a conflicting
// range belongs to, as passed to FindConflicting's visit callback.
type ConflictSide int

const (
	ConflictSideA ConflictSide = iota
	ConflictSideB
)

// FindConflicting walks the ancestry of a and b, calling visit once per LV
// range that belongs to only one side (in descending LV order), and
// returns the common ancestor frontier — the dominator set of the point(s)
// where the two histories converge, or empty if they share no ancestry.
func (cg *CausalGraph) FindConflicting(a, b []LV, visit func(LVRange, ConflictSide)) ([]LV, error) {
	common, err := cg.diffScan(a, b, func(r LVRange, lbl diffLabel) {
		switch lbl {
		case diffLabelA:
			visit(r, ConflictSideA)
		case diffLabelB:
			visit(r, ConflictSideB)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("causalgraph: FindConflicting: %w", err)
	}
	return common, nil
}

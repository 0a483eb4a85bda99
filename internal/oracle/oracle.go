// Package oracle provides brute-force, obviously-correct reference
// implementations of causalgraph's graph algorithms, used only from tests
// to check the optimized heap-based traversals by differential testing.
// The ancestor-set expansion is grounded directly on the eg-walker
// reference's diff: expand each frontier to its full ancestor set by
// walking parents with a plain work-list, then answer every other query
// (containment, dominators, diff) as set arithmetic on top of that.
package oracle

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/josephg/causal-graph/causalgraph"
)

// Expand returns the full set of ancestors of frontier (including frontier
// itself): every LV reachable by repeatedly following Parents.
func Expand(cg *causalgraph.CausalGraph, frontier []causalgraph.LV) (mapset.Set[causalgraph.LV], error) {
	set := mapset.NewSet[causalgraph.LV]()
	stack := append([]causalgraph.LV(nil), frontier...)

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if set.Contains(v) {
			continue
		}
		set.Add(v)

		e, _, err := cg.FindEntryContaining(v)
		if err != nil {
			return nil, err
		}
		offset := v - e.Version
		if offset == 0 {
			stack = append(stack, e.Parents...)
		} else {
			stack = append(stack, v-1)
		}
	}
	return set, nil
}

// ContainsLV is the brute-force reference for CausalGraph.ContainsLV.
func ContainsLV(cg *causalgraph.CausalGraph, frontier []causalgraph.LV, target causalgraph.LV) (bool, error) {
	set, err := Expand(cg, frontier)
	if err != nil {
		return false, err
	}
	return set.Contains(target), nil
}

// Diff is the brute-force reference for CausalGraph.Diff. It returns plain
// sets of LVs rather than RLE ranges, since the reference implementation
// makes no attempt to be efficient or compact.
func Diff(cg *causalgraph.CausalGraph, a, b []causalgraph.LV) (aOnly, bOnly mapset.Set[causalgraph.LV], err error) {
	aSet, err := Expand(cg, a)
	if err != nil {
		return nil, nil, err
	}
	bSet, err := Expand(cg, b)
	if err != nil {
		return nil, nil, err
	}
	return aSet.Difference(bSet), bSet.Difference(aSet), nil
}

// FindDominators is the brute-force reference for
// CausalGraph.FindDominators: v survives iff no other input's ancestor set
// contains it.
func FindDominators(cg *causalgraph.CausalGraph, lvs []causalgraph.LV) ([]causalgraph.LV, error) {
	unique := mapset.NewSet[causalgraph.LV](lvs...).ToSlice()
	ancestors := make(map[causalgraph.LV]mapset.Set[causalgraph.LV], len(unique))
	for _, v := range unique {
		set, err := Expand(cg, []causalgraph.LV{v})
		if err != nil {
			return nil, err
		}
		ancestors[v] = set
	}

	var dominators []causalgraph.LV
	for _, v := range unique {
		dominated := false
		for _, other := range unique {
			if other == v {
				continue
			}
			if ancestors[other].Contains(v) {
				dominated = true
				break
			}
		}
		if !dominated {
			dominators = append(dominators, v)
		}
	}
	return dominators, nil
}

// RangeToSet flattens ranges produced by CausalGraph.Diff into a plain set,
// for comparing against Diff's brute-force output.
func RangeToSet(ranges []causalgraph.LVRange) mapset.Set[causalgraph.LV] {
	set := mapset.NewSet[causalgraph.LV]()
	for _, r := range ranges {
		for v := r.Start; v < r.End; v++ {
			set.Add(v)
		}
	}
	return set
}

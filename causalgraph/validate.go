package causalgraph

import "fmt"

// Check validates every invariant a CausalGraph is expected to maintain: LV
// density, parents-precede-children, RLE-maximality of both indices,
// bijectivity between (agent, seq) and LV, and that heads matches the
// dominator set of the whole graph. It is intended for use in tests and
// fuzzing, not on any hot path.
func Check(cg *CausalGraph) error {
	items := cg.entries.Items()
	var next LV
	for i, e := range items {
		if e.VEnd <= e.Version {
			return fmt.Errorf("causalgraph: Check: entry %d is empty or inverted (%d, %d): %w", i, e.Version, e.VEnd, ErrInvariantViolation)
		}
		if e.Version != next {
			return fmt.Errorf("causalgraph: Check: entries not dense at index %d: want version %d, got %d: %w", i, next, e.Version, ErrInvariantViolation)
		}
		for _, p := range e.Parents {
			if p >= e.Version {
				return fmt.Errorf("causalgraph: Check: entry %d has parent %d >= its own version %d: %w", i, p, e.Version, ErrInvariantViolation)
			}
		}
		if i > 0 {
			prev := items[i-1]
			if (&prev).TryAppend(e) {
				return fmt.Errorf("causalgraph: Check: entries %d and %d should have been merged: %w", i-1, i, ErrInvariantViolation)
			}
		}
		next = e.VEnd
	}

	total := cg.NextLV()
	owner := make([]bool, total)

	for agent, list := range cg.agentToVersion {
		citems := list.Items()
		for i, ce := range citems {
			if ce.SeqEnd <= ce.Seq {
				return fmt.Errorf("causalgraph: Check: client entry for %s is empty: %w", agent, ErrInvariantViolation)
			}
			if i > 0 {
				prev := citems[i-1]
				if (&prev).TryAppend(ce) {
					return fmt.Errorf("causalgraph: Check: client entries %d and %d for %s should have been merged: %w", i-1, i, agent, ErrInvariantViolation)
				}
			}
			for off := uint64(0); off < ce.SeqEnd-ce.Seq; off++ {
				lv := ce.Version + LV(off)
				if lv < 0 || lv >= total {
					return fmt.Errorf("causalgraph: Check: client entry for %s maps seq %d to out-of-range LV %d: %w", agent, ce.Seq+off, lv, ErrInvariantViolation)
				}
				if owner[lv] {
					return fmt.Errorf("causalgraph: Check: LV %d is claimed by more than one (agent, seq): %w", lv, ErrInvariantViolation)
				}
				owner[lv] = true

				e, offset, err := cg.FindEntryContaining(lv)
				if err != nil {
					return fmt.Errorf("causalgraph: Check: %w", err)
				}
				if e.Agent != agent || e.Seq+uint64(offset) != ce.Seq+off {
					return fmt.Errorf("causalgraph: Check: LV %d disagrees between the two indices: %w", lv, ErrInvariantViolation)
				}
			}
		}
	}
	for lv := LV(0); lv < total; lv++ {
		if !owner[lv] {
			return fmt.Errorf("causalgraph: Check: LV %d has no owning (agent, seq): %w", lv, ErrInvariantViolation)
		}
	}

	if total > 0 {
		all := make([]LV, total)
		for i := range all {
			all[i] = LV(i)
		}
		wantHeads, err := cg.FindDominators(all)
		if err != nil {
			return fmt.Errorf("causalgraph: Check: %w", err)
		}
		gotHeads := append([]LV(nil), cg.heads...)
		sortLVsAsc(gotHeads)
		if !equalLVSlices(wantHeads, gotHeads) {
			return fmt.Errorf("causalgraph: Check: heads %v do not match the computed dominator set %v: %w", gotHeads, wantHeads, ErrInvariantViolation)
		}
	} else if len(cg.heads) != 0 {
		return fmt.Errorf("causalgraph: Check: empty graph has non-empty heads %v: %w", cg.heads, ErrInvariantViolation)
	}

	return nil
}

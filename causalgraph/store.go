package causalgraph

import (
	"fmt"
	"sort"

	"github.com/josephg/causal-graph/rle"
)

// NextLV returns the next available local version: the total count of
// distinct changes known to this graph.
func (cg *CausalGraph) NextLV() LV {
	items := cg.entries.Items()
	if len(items) == 0 {
		return 0
	}
	return items[len(items)-1].VEnd
}

// NextSeqForAgent returns the next sequence number this peer would assign
// to agent — the seqEnd of its last known client entry, or 0 if the agent
// is unknown. Holes are never back-filled: once an agent's seq range is
// known to have a gap, the gap is permanent at this peer.
func (cg *CausalGraph) NextSeqForAgent(agent AgentID) uint64 {
	list, ok := cg.agentToVersion[agent]
	if !ok {
		return 0
	}
	items := list.Items()
	if len(items) == 0 {
		return 0
	}
	return items[len(items)-1].SeqEnd
}

// HasPub reports whether (agent, seq) is known to this graph.
func (cg *CausalGraph) HasPub(agent AgentID, seq uint64) bool {
	list, ok := cg.agentToVersion[agent]
	if !ok {
		return false
	}
	_, _, err := list.Find(seq)
	return err == nil
}

// FindEntryContaining returns the CG entry covering v and v's offset within
// it (v - entry.Version).
func (cg *CausalGraph) FindEntryContaining(v LV) (*CGEntry, LV, error) {
	e, offset, err := cg.entries.Find(v)
	if err != nil {
		return nil, 0, fmt.Errorf("causalgraph: FindEntryContaining(%d): %w", v, ErrNotFound)
	}
	return e, offset, nil
}

// Entries returns every CG entry in version order. The slice aliases
// internal storage and must not be mutated.
func (cg *CausalGraph) Entries() []CGEntry { return cg.entries.Items() }

// EntriesInRange returns the CG entries intersecting [lo, hi), clipped so
// each returned entry lies entirely within the range.
func (cg *CausalGraph) EntriesInRange(lo, hi LV) []CGEntry {
	return cg.entries.IterRangeClipped(lo, hi).All()
}

// Heads returns a copy of the current frontier, ascending by LV.
func (cg *CausalGraph) Heads() []LV {
	out := make([]LV, len(cg.heads))
	copy(out, cg.heads)
	return out
}

// LVToPub converts a local version to its public identity.
func (cg *CausalGraph) LVToPub(v LV) (PubVersion, error) {
	e, offset, err := cg.FindEntryContaining(v)
	if err != nil {
		return PubVersion{}, err
	}
	return PubVersion{Agent: e.Agent, Seq: e.Seq + uint64(offset)}, nil
}

// LVToPubWithParents converts v to its public identity and parents: the
// run's stored parents when v starts a run, otherwise the single implicit
// parent v-1.
func (cg *CausalGraph) LVToPubWithParents(v LV) (PubVersion, []LV, error) {
	e, offset, err := cg.FindEntryContaining(v)
	if err != nil {
		return PubVersion{}, nil, err
	}
	pv := PubVersion{Agent: e.Agent, Seq: e.Seq + uint64(offset)}
	if offset == 0 {
		return pv, e.Parents, nil
	}
	return pv, []LV{v - 1}, nil
}

// LVListToPub converts a list of LVs to their public identities.
func (cg *CausalGraph) LVListToPub(lvs []LV) ([]PubVersion, error) {
	if len(lvs) == 0 {
		return nil, nil
	}
	out := make([]PubVersion, len(lvs))
	for i, v := range lvs {
		pv, err := cg.LVToPub(v)
		if err != nil {
			return nil, fmt.Errorf("causalgraph: LVListToPub: %w", err)
		}
		out[i] = pv
	}
	return out, nil
}

// PubToLV converts a public identity to its local version.
func (cg *CausalGraph) PubToLV(agent AgentID, seq uint64) (LV, error) {
	list, ok := cg.agentToVersion[agent]
	if !ok {
		return 0, fmt.Errorf("causalgraph: PubToLV(%s, %d): %w", agent, seq, ErrNotFound)
	}
	ce, offset, err := list.Find(seq)
	if err != nil {
		return 0, fmt.Errorf("causalgraph: PubToLV(%s, %d): %w", agent, seq, ErrNotFound)
	}
	return ce.Version + LV(offset), nil
}

// TryPubToLV is PubToLV without an error: ok is false when the identity is
// unknown.
func (cg *CausalGraph) TryPubToLV(agent AgentID, seq uint64) (lv LV, ok bool) {
	lv, err := cg.PubToLV(agent, seq)
	return lv, err == nil
}

// PubListToLV converts a list of public identities to local versions.
func (cg *CausalGraph) PubListToLV(pubs []PubVersion) ([]LV, error) {
	if len(pubs) == 0 {
		return nil, nil
	}
	out := make([]LV, len(pubs))
	for i, pv := range pubs {
		lv, err := cg.PubToLV(pv.Agent, pv.Seq)
		if err != nil {
			return nil, fmt.Errorf("causalgraph: PubListToLV: %w", err)
		}
		out[i] = lv
	}
	return out, nil
}

// PubToLVSpan returns the longest contiguous LV range starting at the
// public key (agent, seq) and running to the end of the client entry that
// contains it.
func (cg *CausalGraph) PubToLVSpan(agent AgentID, seq uint64) (LVRange, error) {
	list, ok := cg.agentToVersion[agent]
	if !ok {
		return LVRange{}, fmt.Errorf("causalgraph: PubToLVSpan(%s, %d): %w", agent, seq, ErrNotFound)
	}
	ce, offset, err := list.Find(seq)
	if err != nil {
		return LVRange{}, fmt.Errorf("causalgraph: PubToLVSpan(%s, %d): %w", agent, seq, ErrNotFound)
	}
	start := ce.Version + LV(offset)
	end := ce.Version + LV(ce.SeqEnd-ce.Seq)
	return LVRange{Start: start, End: end}, nil
}

// Add is the core idempotent insertion: it assigns LVs to the run
// (agent, [seqStart, seqEnd)) with the given parents (parents of the
// change at seqStart), skipping any prefix already known. It returns a copy
// of the first new entry it created, as constructed (before any RLE merge
// into the preceding run), or nil if the entire range was already known.
// When the range straddles seqs that are already known, it creates one entry
// per unknown piece and only the first of them is returned.
func (cg *CausalGraph) Add(agent AgentID, seqStart, seqEnd uint64, parents []LV) (*CGEntry, error) {
	if seqEnd <= seqStart {
		return nil, fmt.Errorf("causalgraph: Add(%s, %d, %d): empty range: %w", agent, seqStart, seqEnd, ErrInvalidArgument)
	}

	curParents := parents
	var firstCreated *CGEntry

	for seqStart < seqEnd {
		if list, ok := cg.agentToVersion[agent]; ok {
			if ce, _, err := list.Find(seqStart); err == nil {
				if ce.SeqEnd >= seqEnd {
					// The whole remaining range is already known.
					seqStart = seqEnd
					break
				}
				lastKnownLV := ce.Version + LV(ce.SeqEnd-ce.Seq) - 1
				seqStart = ce.SeqEnd
				curParents = []LV{lastKnownLV}
				continue
			}
		}

		end := seqEnd
		if list, ok := cg.agentToVersion[agent]; ok {
			items := list.Items()
			idx := sort.Search(len(items), func(i int) bool { return items[i].Seq > seqStart })
			if idx < len(items) && items[idx].Seq < end {
				end = items[idx].Seq
			}
		}

		version := cg.NextLV()
		vEnd := version + LV(end-seqStart)
		entry := CGEntry{
			Version: version,
			VEnd:    vEnd,
			Agent:   agent,
			Seq:     seqStart,
			Parents: append([]LV(nil), curParents...),
		}
		cg.entries.Push(entry)

		list, ok := cg.agentToVersion[agent]
		if !ok {
			list = &rle.List[ClientEntry, uint64, *ClientEntry]{}
			cg.agentToVersion[agent] = list
		}
		if err := list.Insert(ClientEntry{Seq: seqStart, SeqEnd: end, Version: version}); err != nil {
			return nil, fmt.Errorf("causalgraph: Add(%s, %d, %d): %w: %w", agent, seqStart, seqEnd, ErrAlreadyExists, err)
		}

		cg.heads = AdvanceFrontier(cg.heads, vEnd-1, entry.Parents)

		if firstCreated == nil {
			created := entry
			firstCreated = &created
		}
		seqStart = end
		curParents = []LV{vEnd - 1}
	}

	return firstCreated, nil
}

// AddPub resolves parents (defaulting to the current heads when nil) and
// delegates to Add.
func (cg *CausalGraph) AddPub(id PubVersion, length uint64, parents []PubVersion) (*CGEntry, error) {
	var parentLVs []LV
	if parents == nil {
		parentLVs = append([]LV(nil), cg.heads...)
	} else {
		var err error
		parentLVs, err = cg.PubListToLV(parents)
		if err != nil {
			return nil, fmt.Errorf("causalgraph: AddPub(%s, %d): %w", id.Agent, id.Seq, err)
		}
	}
	return cg.Add(id.Agent, id.Seq, id.Seq+length, parentLVs)
}

// Summarize produces a vector-clock-style digest of every change this peer
// knows about, as per-agent RLE-merged seq ranges.
func (cg *CausalGraph) Summarize() VersionSummary {
	out := make(VersionSummary, len(cg.agentToVersion))
	for agent, list := range cg.agentToVersion {
		items := list.Items()
		if len(items) == 0 {
			continue
		}
		ranges := make([][2]uint64, len(items))
		for i, ce := range items {
			ranges[i] = [2]uint64{ce.Seq, ce.SeqEnd}
		}
		out[agent] = ranges
	}
	return out
}

// IntersectWithSummary compares a remote VersionSummary against this
// graph's local knowledge. It returns the common dominator set (a valid
// starting point for Diff against this graph's heads) and a VersionSummary
// of exactly the remote ranges this peer has never heard of. Agents this
// peer knows that the remote summary never mentions are not reported here —
// the caller learns only what it is missing relative to the remote side.
func (cg *CausalGraph) IntersectWithSummary(remote VersionSummary) ([]LV, VersionSummary, error) {
	var collected []LV
	var remoteOnly VersionSummary

	for agent, ranges := range remote {
		list, ok := cg.agentToVersion[agent]
		for _, r := range ranges {
			seqStart, seqEnd := r[0], r[1]
			if !ok {
				remoteOnly = appendRemoteOnly(remoteOnly, agent, seqStart, seqEnd)
				continue
			}

			pos := seqStart
			cur := list.IterRangeClipped(seqStart, seqEnd)
			for {
				ce, more := cur.Next()
				if !more {
					break
				}
				if ce.Seq > pos {
					remoteOnly = appendRemoteOnly(remoteOnly, agent, pos, ce.Seq)
				}
				lvStart := ce.Version
				lvEnd := ce.Version + LV(ce.SeqEnd-ce.Seq)
				bounds, err := cg.entryEndBoundaries(lvStart, lvEnd)
				if err != nil {
					return nil, nil, fmt.Errorf("causalgraph: IntersectWithSummary: %w", err)
				}
				collected = append(collected, bounds...)
				pos = ce.SeqEnd
			}
			if pos < seqEnd {
				remoteOnly = appendRemoteOnly(remoteOnly, agent, pos, seqEnd)
			}
		}
	}

	common, err := cg.FindDominators(collected)
	if err != nil {
		return nil, nil, fmt.Errorf("causalgraph: IntersectWithSummary: %w", err)
	}
	return common, mergeVersionSummary(remoteOnly), nil
}

// entryEndBoundaries walks the CG entries covering [lo, hi) and returns, for
// each one intersected, the last LV of that entry that lies inside [lo, hi).
func (cg *CausalGraph) entryEndBoundaries(lo, hi LV) ([]LV, error) {
	var out []LV
	cur := cg.entries.IterRangeClipped(lo, hi)
	for {
		e, more := cur.Next()
		if !more {
			break
		}
		out = append(out, e.VEnd-1)
	}
	return out, nil
}

func appendRemoteOnly(summary VersionSummary, agent AgentID, start, end uint64) VersionSummary {
	if end <= start {
		return summary
	}
	if summary == nil {
		summary = make(VersionSummary)
	}
	summary[agent] = append(summary[agent], [2]uint64{start, end})
	return summary
}

// mergeVersionSummary RLE-merges adjacent ranges per agent; appendRemoteOnly
// emits ranges in ascending seq order per agent so adjacency only ever
// appears between consecutive entries.
func mergeVersionSummary(summary VersionSummary) VersionSummary {
	if summary == nil {
		return nil
	}
	for agent, ranges := range summary {
		merged := ranges[:1]
		for _, r := range ranges[1:] {
			last := &merged[len(merged)-1]
			if r[0] == last[1] {
				last[1] = r[1]
			} else {
				merged = append(merged, r)
			}
		}
		summary[agent] = merged
	}
	return summary
}

// AdvanceFrontier removes from frontier any LV that appears in parents
// (those are no longer dominators, having been superseded by newLV), then
// appends newLV and returns the result in ascending order.
func AdvanceFrontier(frontier []LV, newLV LV, parents []LV) []LV {
	out := make([]LV, 0, len(frontier)+1)
	for _, v := range frontier {
		isParent := false
		for _, p := range parents {
			if v == p {
				isParent = true
				break
			}
		}
		if !isParent {
			out = append(out, v)
		}
	}
	out = append(out, newLV)
	sortLVsAsc(out)
	return out
}

// PubVersionCmp orders public versions lexicographically: agent, then seq.
func PubVersionCmp(a, b PubVersion) int {
	if a.Agent != b.Agent {
		if a.Agent < b.Agent {
			return -1
		}
		return 1
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	default:
		return 0
	}
}

// LVCmp orders local versions numerically.
func LVCmp(a, b LV) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// sortLVsAsc sorts small LV slices in place. Frontiers are almost always
// under five elements, so a plain insertion sort beats the constant
// overhead of sort.Slice.
func sortLVsAsc(lvs []LV) {
	for i := 1; i < len(lvs); i++ {
		for j := i; j > 0 && lvs[j-1] > lvs[j]; j-- {
			lvs[j-1], lvs[j] = lvs[j], lvs[j-1]
		}
	}
}

func sortLVsAscDedup(lvs []LV) []LV {
	if len(lvs) <= 1 {
		return lvs
	}
	cp := append([]LV(nil), lvs...)
	sortLVsAsc(cp)
	j := 1
	for i := 1; i < len(cp); i++ {
		if cp[i] != cp[i-1] {
			cp[j] = cp[i]
			j++
		}
	}
	return cp[:j]
}

func equalLVSlices(a, b []LV) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

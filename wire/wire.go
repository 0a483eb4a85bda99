// Package wire implements the sync serialization layer on top of
// causalgraph: snapshot and delta codecs, version summaries, and
// peer-to-peer merge. There is no teacher precedent for this layer — it is
// built from scratch in the causalgraph package's own idiom (sentinel
// errors wrapped with fmt.Errorf, table-driven tests) directly off the
// wire format description it implements.
//
// There is no persistence format stability guarantee: the snapshot and
// delta layouts may change between versions of this module.
package wire

import (
	"fmt"
	"sort"

	"github.com/josephg/causal-graph/causalgraph"
)

// SnapshotEntryV2 is one run in a v2 snapshot dump. Parents are raw local
// versions — valid only because a receiver rebuilding from a snapshot
// processes entries in order and therefore assigns identical LVs.
type SnapshotEntryV2 struct {
	Agent   causalgraph.AgentID
	Seq     uint64
	Len     uint64
	Parents []causalgraph.LV
}

// DeltaEntryV2 is one run in a v2 delta, addressed entirely by public
// identity so it can be replayed against any destination graph.
type DeltaEntryV2 struct {
	Agent   causalgraph.AgentID
	Seq     uint64
	Len     uint64
	Parents []causalgraph.PubVersion
}

// DeltaEntryV3 is one run using the packed parent encoding: a non-negative
// value is an index into the entries of the same payload (referring to
// that entry's tail change); a negative value -k-1 indexes into the
// payload's ExtRefs table. SnapshotEntryV3 shares this shape since v3
// snapshots and deltas use the identical packed encoding.
type DeltaEntryV3 struct {
	Agent   causalgraph.AgentID
	Seq     uint64
	Len     uint64
	Parents []int64
}

// SnapshotEntryV3 is DeltaEntryV3 under the name used for snapshot payloads.
type SnapshotEntryV3 = DeltaEntryV3

// DeltaV3 is a self-contained v3 delta payload.
type DeltaV3 struct {
	ExtRefs []causalgraph.PubVersion
	Entries []DeltaEntryV3
}

// SnapshotV3 is a self-contained v3 snapshot payload.
type SnapshotV3 struct {
	ExtRefs []causalgraph.PubVersion
	Entries []SnapshotEntryV3
}

// Serialize dumps cg as an ordered v2 snapshot.
func Serialize(cg *causalgraph.CausalGraph) []SnapshotEntryV2 {
	entries := cg.Entries()
	out := make([]SnapshotEntryV2, len(entries))
	for i, e := range entries {
		out[i] = SnapshotEntryV2{
			Agent:   e.Agent,
			Seq:     e.Seq,
			Len:     uint64(e.VEnd - e.Version),
			Parents: append([]causalgraph.LV(nil), e.Parents...),
		}
	}
	return out
}

// FromSerialized rebuilds a graph from a v2 snapshot by streaming
// add-style inserts.
func FromSerialized(entries []SnapshotEntryV2) (*causalgraph.CausalGraph, error) {
	out := causalgraph.CreateCG()
	for i, e := range entries {
		if _, err := out.Add(e.Agent, e.Seq, e.Seq+e.Len, e.Parents); err != nil {
			return nil, fmt.Errorf("wire: FromSerialized: entry %d: %w", i, err)
		}
	}
	return out, nil
}

// SerializeV3 dumps cg as a packed v3 snapshot.
func SerializeV3(cg *causalgraph.CausalGraph) (SnapshotV3, error) {
	v2 := Serialize(cg)
	asDelta := make([]DeltaEntryV2, len(v2))
	for i, e := range v2 {
		parents, err := cg.LVListToPub(e.Parents)
		if err != nil {
			return SnapshotV3{}, fmt.Errorf("wire: SerializeV3: entry %d: %w", i, err)
		}
		if parents == nil {
			parents = []causalgraph.PubVersion{}
		}
		asDelta[i] = DeltaEntryV2{Agent: e.Agent, Seq: e.Seq, Len: e.Len, Parents: parents}
	}
	packed := packDeltaV3(asDelta)
	return SnapshotV3{ExtRefs: packed.ExtRefs, Entries: packed.Entries}, nil
}

// FromSerializedV3 rebuilds a graph from a packed v3 snapshot.
func FromSerializedV3(snap SnapshotV3) (*causalgraph.CausalGraph, error) {
	out := causalgraph.CreateCG()
	if _, err := MergePartialV3(out, DeltaV3{ExtRefs: snap.ExtRefs, Entries: snap.Entries}); err != nil {
		return nil, fmt.Errorf("wire: FromSerializedV3: %w", err)
	}
	return out, nil
}

// SerializeDiff emits the changes in ranges as a causally-ordered v2 delta.
// For each range it walks the CG entries intersecting it, splitting at
// entry boundaries: a sub-range starting at an entry's first change
// carries that entry's stored parents; a sub-range starting partway
// through an entry carries its single implicit predecessor as its only
// parent.
func SerializeDiff(cg *causalgraph.CausalGraph, ranges []causalgraph.LVRange) ([]DeltaEntryV2, error) {
	var out []DeltaEntryV2
	for _, r := range ranges {
		start := r.Start
		for start < r.End {
			e, _, err := cg.FindEntryContaining(start)
			if err != nil {
				return nil, fmt.Errorf("wire: SerializeDiff: %w", err)
			}
			offset := start - e.Version
			end := r.End
			if e.VEnd < end {
				end = e.VEnd
			}

			var parents []causalgraph.PubVersion
			if offset == 0 {
				parents, err = cg.LVListToPub(e.Parents)
				if err != nil {
					return nil, fmt.Errorf("wire: SerializeDiff: %w", err)
				}
				if parents == nil {
					parents = []causalgraph.PubVersion{}
				}
			} else {
				pv, err := cg.LVToPub(start - 1)
				if err != nil {
					return nil, fmt.Errorf("wire: SerializeDiff: %w", err)
				}
				parents = []causalgraph.PubVersion{pv}
			}

			out = append(out, DeltaEntryV2{
				Agent:   e.Agent,
				Seq:     e.Seq + uint64(offset),
				Len:     uint64(end - start),
				Parents: parents,
			})
			start = end
		}
	}
	return out, nil
}

// SerializeDiffV3 is SerializeDiff packed into the v3 encoding: parents
// that point at another entry in the same payload are encoded as that
// entry's index; everything else goes in ExtRefs.
func SerializeDiffV3(cg *causalgraph.CausalGraph, ranges []causalgraph.LVRange) (DeltaV3, error) {
	v2, err := SerializeDiff(cg, ranges)
	if err != nil {
		return DeltaV3{}, fmt.Errorf("wire: SerializeDiffV3: %w", err)
	}
	return packDeltaV3(v2), nil
}

// SerializeFromVersion emits everything reachable from cg's current heads
// that is not yet reachable from since, as a v2 delta.
func SerializeFromVersion(cg *causalgraph.CausalGraph, since []causalgraph.LV) ([]DeltaEntryV2, error) {
	_, bOnly, err := cg.Diff(since, cg.Heads())
	if err != nil {
		return nil, fmt.Errorf("wire: SerializeFromVersion: %w", err)
	}
	return SerializeDiff(cg, bOnly)
}

// MergePartial applies a v2 delta to dest, resolving each entry's public
// parents against dest's own PubToLV index. Entries that are entirely
// already known are a no-op, not an error — duplicate delta application is
// the defined idempotent behaviour. It returns the contiguous LV range
// newly assigned in dest.
func MergePartial(dest *causalgraph.CausalGraph, delta []DeltaEntryV2) (causalgraph.LVRange, error) {
	start := dest.NextLV()
	for i, e := range delta {
		parents, err := dest.PubListToLV(e.Parents)
		if err != nil {
			return causalgraph.LVRange{}, fmt.Errorf("wire: MergePartial: entry %d: %w", i, err)
		}
		if _, err := dest.Add(e.Agent, e.Seq, e.Seq+e.Len, parents); err != nil {
			return causalgraph.LVRange{}, fmt.Errorf("wire: MergePartial: entry %d: %w", i, err)
		}
	}
	return causalgraph.LVRange{Start: start, End: dest.NextLV()}, nil
}

// MergePartialV3 is MergePartial for a packed v3 delta: each packed parent
// offset is resolved to a public identity (from an earlier entry in this
// same payload, or from ExtRefs) and then to a local version via dest's own
// index, before inserting.
func MergePartialV3(dest *causalgraph.CausalGraph, delta DeltaV3) (causalgraph.LVRange, error) {
	start := dest.NextLV()
	for i, e := range delta.Entries {
		parents := make([]causalgraph.LV, len(e.Parents))
		for j, p := range e.Parents {
			lv, err := diffOffsetToLV(dest, delta.Entries, delta.ExtRefs, p)
			if err != nil {
				return causalgraph.LVRange{}, fmt.Errorf("wire: MergePartialV3: entry %d parent %d: %w", i, j, err)
			}
			parents[j] = lv
		}
		if _, err := dest.Add(e.Agent, e.Seq, e.Seq+e.Len, parents); err != nil {
			return causalgraph.LVRange{}, fmt.Errorf("wire: MergePartialV3: entry %d: %w", i, err)
		}
	}
	return causalgraph.LVRange{Start: start, End: dest.NextLV()}, nil
}

// diffOffsetToLV resolves one packed v3 parent reference to a local
// version in dest: a non-negative value names the tail public identity of
// entries[p] (an earlier entry in this same payload); a negative value
// -k-1 names extRefs[k] directly. Either way the resulting public identity
// must already be known to dest — either pre-existing or inserted earlier
// in this same MergePartialV3 call.
func diffOffsetToLV(dest *causalgraph.CausalGraph, entries []DeltaEntryV3, extRefs []causalgraph.PubVersion, p int64) (causalgraph.LV, error) {
	var pub causalgraph.PubVersion
	if p >= 0 {
		idx := int(p)
		if idx >= len(entries) {
			return 0, fmt.Errorf("wire: parent offset %d out of range: %w", p, causalgraph.ErrInvalidArgument)
		}
		e := entries[idx]
		pub = causalgraph.PubVersion{Agent: e.Agent, Seq: e.Seq + e.Len - 1}
	} else {
		idx := int(-p - 1)
		if idx < 0 || idx >= len(extRefs) {
			return 0, fmt.Errorf("wire: parent extref %d out of range: %w", p, causalgraph.ErrInvalidArgument)
		}
		pub = extRefs[idx]
	}
	lv, err := dest.PubToLV(pub.Agent, pub.Seq)
	if err != nil {
		return 0, fmt.Errorf("wire: parent (%s, %d) not yet known to destination: %w", pub.Agent, pub.Seq, causalgraph.ErrInvalidArgument)
	}
	return lv, nil
}

// packDeltaV3 packs a v2 delta's parents into the v3 offset-or-extref
// encoding: a parent whose public identity is the tail of an earlier entry
// in the same payload is encoded as that entry's index; everything else is
// appended to ExtRefs.
func packDeltaV3(entries []DeltaEntryV2) DeltaV3 {
	type key struct {
		agent causalgraph.AgentID
		seq   uint64
	}
	tailIndex := make(map[key]int, len(entries))
	extRefIndex := make(map[key]int)
	var extRefs []causalgraph.PubVersion
	packed := make([]DeltaEntryV3, len(entries))

	for i, e := range entries {
		parents := make([]int64, len(e.Parents))
		for j, p := range e.Parents {
			k := key{p.Agent, p.Seq}
			if idx, ok := tailIndex[k]; ok {
				parents[j] = int64(idx)
			} else {
				idx, ok := extRefIndex[k]
				if !ok {
					idx = len(extRefs)
					extRefs = append(extRefs, p)
					extRefIndex[k] = idx
				}
				parents[j] = int64(-idx - 1)
			}
		}
		packed[i] = DeltaEntryV3{Agent: e.Agent, Seq: e.Seq, Len: e.Len, Parents: parents}
		tailIndex[key{e.Agent, e.Seq + e.Len - 1}] = i
	}
	return DeltaV3{ExtRefs: extRefs, Entries: packed}
}

// AdvanceVersionFromSerialized computes the public frontier that would
// result from applying delta to a graph currently at version, without
// actually inserting anything. Useful for deduplicating concurrent delta
// streams before committing to one.
func AdvanceVersionFromSerialized(version []causalgraph.PubVersion, delta []DeltaEntryV2) []causalgraph.PubVersion {
	for _, e := range delta {
		tip := causalgraph.PubVersion{Agent: e.Agent, Seq: e.Seq + e.Len - 1}
		version = advancePubFrontier(version, tip, e.Parents)
	}
	return version
}

func advancePubFrontier(frontier []causalgraph.PubVersion, newTip causalgraph.PubVersion, parents []causalgraph.PubVersion) []causalgraph.PubVersion {
	out := make([]causalgraph.PubVersion, 0, len(frontier)+1)
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
	out = append(out, newTip)
	sort.Slice(out, func(i, j int) bool { return causalgraph.PubVersionCmp(out[i], out[j]) < 0 })
	return out
}

// MergeLocal merges every change src knows about and dest doesn't into
// dest: it summarizes dest, finds the common dominator frontier against
// src, diffs out exactly the missing ranges, and applies them as a packed
// v3 delta. It returns the LV ranges newly assigned in dest (empty if src
// had nothing new).
func MergeLocal(dest, src *causalgraph.CausalGraph) ([]causalgraph.LVRange, error) {
	destSummary := dest.Summarize()

	common, _, err := src.IntersectWithSummary(destSummary)
	if err != nil {
		return nil, fmt.Errorf("wire: MergeLocal: %w", err)
	}

	_, missing, err := src.Diff(common, src.Heads())
	if err != nil {
		return nil, fmt.Errorf("wire: MergeLocal: %w", err)
	}
	if len(missing) == 0 {
		return nil, nil
	}

	delta, err := SerializeDiffV3(src, missing)
	if err != nil {
		return nil, fmt.Errorf("wire: MergeLocal: %w", err)
	}

	inserted, err := MergePartialV3(dest, delta)
	if err != nil {
		return nil, fmt.Errorf("wire: MergeLocal: %w", err)
	}
	if inserted.Len() == 0 {
		return nil, nil
	}
	return []causalgraph.LVRange{inserted}, nil
}

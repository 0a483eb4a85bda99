// Package causalgraph implements a compact, in-memory causal graph for
// operation-based CRDTs: a doubly-indexed, run-length-encoded store mapping
// between local version numbers (LVs) and public (agent, seq) identities,
// plus the priority-queue graph algorithms (diff, dominators, containment,
// conflict scan) that walk it.
//
// The graph stores only the causal skeleton of a change history — never the
// operation payloads themselves. It is not safe for concurrent mutation;
// concurrent read-only traversals are fine.
package causalgraph

import (
	"github.com/josephg/causal-graph/rle"
)

// LV (local version) names a single change within this peer. LVs are
// assigned densely starting at 0 and are never reused; they must not be
// serialized across peers.
type LV int64

// LVRange is a half-open [Start, End) range of local versions.
type LVRange struct {
	Start LV
	End   LV
}

// Len returns the number of LVs covered by the range.
func (r LVRange) Len() LV { return r.End - r.Start }

// AgentID is an opaque identifier for a change-producing endpoint.
type AgentID string

// PubVersion is the globally unique public identity (agent, seq) of a
// change.
type PubVersion struct {
	Agent AgentID
	Seq   uint64
}

// CGEntry is a maximal contiguous run of changes sharing one agent and a
// single linear parent chain. Parents are the parents of the first change
// in the run; every later change in the run has the implicit sole parent
// "the LV immediately before it".
type CGEntry struct {
	Version LV       // start of the half-open LV range.
	VEnd    LV       // end (exclusive) of the LV range. VEnd > Version.
	Agent   AgentID  // agent producing this run.
	Seq     uint64   // public seq of the run's first change.
	Parents []LV     // parents of the change at Version.
}

// Len returns the number of changes covered by the entry.
func (e CGEntry) Len() LV { return e.VEnd - e.Version }

// KeyStart, KeyEnd, TryAppend, TruncateKeepingLeft, TruncateKeepingRight
// make CGEntry usable as an rle.Span keyed by LV. Compile-time proof that
// *CGEntry satisfies the Span capability set.
func assertCGEntrySpan[S rle.Span[CGEntry, LV]]() {}

var _ = assertCGEntrySpan[*CGEntry]

func (e *CGEntry) KeyStart() LV { return e.Version }
func (e *CGEntry) KeyEnd() LV   { return e.VEnd }

// TryAppend fuses next onto e when next continues the same agent run with a
// contiguous seq and LV range and a single parent equal to e's tail LV —
// the CG run-extension rule from the data model.
func (e *CGEntry) TryAppend(next CGEntry) bool {
	if e.VEnd != next.Version || e.Agent != next.Agent {
		return false
	}
	if e.Seq+uint64(e.Len()) != next.Seq {
		return false
	}
	if len(next.Parents) != 1 || next.Parents[0] != e.VEnd-1 {
		return false
	}
	e.VEnd = next.VEnd
	return true
}

func (e *CGEntry) TruncateKeepingLeft(offset LV) CGEntry {
	right := CGEntry{
		Version: e.Version + offset,
		VEnd:    e.VEnd,
		Agent:   e.Agent,
		Seq:     e.Seq + uint64(offset),
		Parents: []LV{e.Version + offset - 1},
	}
	e.VEnd = e.Version + offset
	return right
}

func (e *CGEntry) TruncateKeepingRight(offset LV) CGEntry {
	left := CGEntry{
		Version: e.Version,
		VEnd:    e.Version + offset,
		Agent:   e.Agent,
		Seq:     e.Seq,
		Parents: e.Parents,
	}
	e.Version += offset
	e.Seq += uint64(offset)
	e.Parents = []LV{e.Version - 1}
	return left
}

// ClientEntry maps a contiguous [Seq, SeqEnd) run of one agent's sequence
// numbers to the LV range starting at Version. An agent may have several
// client entries when its changes are discontiguous (holes) or were
// inserted out of local arrival order.
type ClientEntry struct {
	Seq     uint64
	SeqEnd  uint64
	Version LV
}

func assertClientEntrySpan[S rle.Span[ClientEntry, uint64]]() {}

var _ = assertClientEntrySpan[*ClientEntry]

func (c *ClientEntry) KeyStart() uint64 { return c.Seq }
func (c *ClientEntry) KeyEnd() uint64   { return c.SeqEnd }

// TryAppend fuses next onto c per the client-entry extension rule: next
// continues the same seq run and its LV continues immediately after c's.
func (c *ClientEntry) TryAppend(next ClientEntry) bool {
	if c.SeqEnd != next.Seq {
		return false
	}
	if c.Version+LV(c.SeqEnd-c.Seq) != next.Version {
		return false
	}
	c.SeqEnd = next.SeqEnd
	return true
}

func (c *ClientEntry) TruncateKeepingLeft(offset uint64) ClientEntry {
	right := ClientEntry{
		Seq:     c.Seq + offset,
		SeqEnd:  c.SeqEnd,
		Version: c.Version + LV(offset),
	}
	c.SeqEnd = c.Seq + offset
	return right
}

func (c *ClientEntry) TruncateKeepingRight(offset uint64) ClientEntry {
	left := ClientEntry{
		Seq:     c.Seq,
		SeqEnd:  c.Seq + offset,
		Version: c.Version,
	}
	c.Version += LV(offset)
	c.Seq += offset
	return left
}

// VersionSummary is a vector-clock-style digest: for each agent, the
// RLE-merged [seq, seqEnd) ranges known locally.
type VersionSummary map[AgentID][][2]uint64

// CausalGraph is the doubly-indexed causal graph store. The zero value is
// not ready to use; construct with CreateCG.
type CausalGraph struct {
	// entries indexes LV -> (agent, seq, parents), ordered and RLE-merged,
	// dense from 0.
	entries rle.List[CGEntry, LV, *CGEntry]

	// agentToVersion indexes (agent, seq) -> LV per agent, RLE-merged but
	// not necessarily gap-free.
	agentToVersion map[AgentID]*rle.List[ClientEntry, uint64, *ClientEntry]

	// heads is the frontier: the dominator set of all stored changes, kept
	// in ascending LV order.
	heads []LV
}

// CreateCG returns a new, empty causal graph.
func CreateCG() *CausalGraph {
	return &CausalGraph{
		agentToVersion: make(map[AgentID]*rle.List[ClientEntry, uint64, *ClientEntry]),
	}
}

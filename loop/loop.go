package loop

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nickng/loopopt/ir"
)

// Edge is a control-flow edge leaving a loop.
type Edge struct {
	From ir.BlockID // Block inside the loop.
	To   ir.BlockID // Block outside the loop.
}

// Loop is a natural loop. Blocks are owned by the Func; a Loop only refers
// to them.
type Loop struct {
	fn       *ir.Func
	header   ir.BlockID
	blocks   []ir.BlockID // Layout order, header first.
	members  map[ir.BlockID]bool
	parent   *Loop
	children []*Loop
}

func newLoop(fn *ir.Func, header ir.BlockID) *Loop {
	return &Loop{
		fn:      fn,
		header:  header,
		members: map[ir.BlockID]bool{header: true},
	}
}

// Func returns the function the loop belongs to.
func (l *Loop) Func() *ir.Func { return l.fn }

// Header returns the loop header.
func (l *Loop) Header() ir.BlockID { return l.header }

// Blocks returns the member blocks in layout order, header first.
func (l *Loop) Blocks() []ir.BlockID { return append([]ir.BlockID(nil), l.blocks...) }

// Contains reports whether b is a member of the loop (or of a loop nested
// in it).
func (l *Loop) Contains(b ir.BlockID) bool { return l.members[b] }

// Parent returns the enclosing loop, or nil for a top-level loop.
func (l *Loop) Parent() *Loop { return l.parent }

// Children returns the loops immediately nested in l.
func (l *Loop) Children() []*Loop { return append([]*Loop(nil), l.children...) }

// IsInnermost reports whether no loop is nested in l.
func (l *Loop) IsInnermost() bool { return len(l.children) == 0 }

// Depth returns the nesting depth; top-level loops have depth 1.
func (l *Loop) Depth() int {
	d := 1
	for p := l.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Latches returns the members with an edge back to the header.
func (l *Loop) Latches() []ir.BlockID {
	var latches []ir.BlockID
	for _, p := range l.fn.Preds(l.header) {
		if l.members[p] {
			latches = append(latches, p)
		}
	}
	return latches
}

// Latch returns the single latch, or NoBlock.
func (l *Loop) Latch() ir.BlockID {
	latches := l.Latches()
	if len(latches) != 1 {
		return ir.NoBlock
	}
	return latches[0]
}

// Predecessor returns the single block outside the loop branching to the
// header, or NoBlock.
func (l *Loop) Predecessor() ir.BlockID {
	pred := ir.NoBlock
	for _, p := range l.fn.Preds(l.header) {
		if l.members[p] {
			continue
		}
		if pred != ir.NoBlock {
			return ir.NoBlock
		}
		pred = p
	}
	return pred
}

// Preheader returns the single outside predecessor of the header when its
// only successor is the header, or NoBlock.
func (l *Loop) Preheader() ir.BlockID {
	pred := l.Predecessor()
	if pred == ir.NoBlock || l.fn.UniqueSucc(pred) != l.header {
		return ir.NoBlock
	}
	return pred
}

// ExitEdges returns every edge from a member block to a block outside the
// loop, in layout order of the source.
func (l *Loop) ExitEdges() []Edge {
	var edges []Edge
	for _, b := range l.blocks {
		seen := make(map[ir.BlockID]bool)
		for _, s := range l.fn.Succs(b) {
			if !l.members[s] && !seen[s] {
				seen[s] = true
				edges = append(edges, Edge{From: b, To: s})
			}
		}
	}
	return edges
}

// ExitingBlocks returns the members with a successor outside the loop.
func (l *Loop) ExitingBlocks() []ir.BlockID {
	var exiting []ir.BlockID
	for _, e := range l.ExitEdges() {
		if len(exiting) == 0 || exiting[len(exiting)-1] != e.From {
			exiting = append(exiting, e.From)
		}
	}
	return exiting
}

// ExitingBlock returns the single exiting block, or NoBlock.
func (l *Loop) ExitingBlock() ir.BlockID {
	exiting := l.ExitingBlocks()
	if len(exiting) != 1 {
		return ir.NoBlock
	}
	return exiting[0]
}

// ExitBlocks returns the distinct blocks outside the loop that a member
// branches to.
func (l *Loop) ExitBlocks() []ir.BlockID {
	var exits []ir.BlockID
	seen := make(map[ir.BlockID]bool)
	for _, e := range l.ExitEdges() {
		if !seen[e.To] {
			seen[e.To] = true
			exits = append(exits, e.To)
		}
	}
	return exits
}

// ExitBlock returns the single exit block, or NoBlock.
func (l *Loop) ExitBlock() ir.BlockID {
	exits := l.ExitBlocks()
	if len(exits) != 1 {
		return ir.NoBlock
	}
	return exits[0]
}

// HasDedicatedExits reports whether every exit block is reached only from
// inside the loop.
func (l *Loop) HasDedicatedExits() bool {
	for _, x := range l.ExitBlocks() {
		for _, p := range l.fn.Preds(x) {
			if !l.members[p] {
				return false
			}
		}
	}
	return true
}

// IsSimplified reports whether the loop has a preheader, a single latch and
// dedicated exits.
func (l *Loop) IsSimplified() bool {
	return l.Preheader() != ir.NoBlock && l.Latch() != ir.NoBlock && l.HasDedicatedExits()
}

// IsInvariant reports whether v is computed outside the loop.
func (l *Loop) IsInvariant(v ir.Value) bool {
	switch v.Kind {
	case ir.ConstValue, ir.ArgValue:
		return true
	case ir.InstValue:
		return !l.members[l.fn.Instr(v.InstrID()).Block]
	}
	return false
}

// ContainsInstr reports whether the instruction id sits in a member block.
func (l *Loop) ContainsInstr(id ir.InstrID) bool {
	return l.members[l.fn.Instr(id).Block]
}

// Instrs returns the instructions of the loop in layout order.
func (l *Loop) Instrs() []ir.InstrID {
	var ids []ir.InstrID
	for _, b := range l.blocks {
		ids = append(ids, l.fn.Block(b).Instrs...)
	}
	return ids
}

// addBlock adds b to l and to every loop enclosing l.
func (l *Loop) addBlock(b ir.BlockID) {
	for x := l; x != nil; x = x.parent {
		if !x.members[b] {
			x.members[b] = true
			x.blocks = append(x.blocks, b)
		}
		x.sortBlocks()
	}
}

func (l *Loop) removeBlock(b ir.BlockID) {
	if b == l.header || !l.members[b] {
		return
	}
	delete(l.members, b)
	for i, x := range l.blocks {
		if x == b {
			l.blocks = append(l.blocks[:i], l.blocks[i+1:]...)
			break
		}
	}
}

// sortBlocks orders members by layout, keeping the header first.
func (l *Loop) sortBlocks() {
	pos := make(map[ir.BlockID]int, len(l.blocks))
	for i, b := range l.fn.Blocks() {
		pos[b] = i
	}
	sort.SliceStable(l.blocks, func(i, j int) bool {
		bi, bj := l.blocks[i], l.blocks[j]
		if bi == l.header || bj == l.header {
			return bi == l.header && bj != l.header
		}
		return pos[bi] < pos[bj]
	})
}

func (l *Loop) String() string {
	names := make([]string, len(l.blocks))
	for i, b := range l.blocks {
		names[i] = l.fn.BlockName(b)
	}
	return fmt.Sprintf("loop at depth %d containing: %s", l.Depth(), strings.Join(names, ","))
}

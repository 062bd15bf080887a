package ir

import (
	"github.com/oleiade/lane"
)

// Succs returns the successors of b in terminator order. A conditional
// branch whose targets coincide yields the block twice.
func (f *Func) Succs(b BlockID) []BlockID {
	t := f.Terminator(b)
	if t == nil {
		return nil
	}
	return append([]BlockID(nil), t.Succs...)
}

// Preds returns the distinct live predecessors of b in layout order.
func (f *Func) Preds(b BlockID) []BlockID {
	var preds []BlockID
	for _, p := range f.layout {
		t := f.Terminator(p)
		if t == nil {
			continue
		}
		for _, s := range t.Succs {
			if s == b {
				preds = append(preds, p)
				break
			}
		}
	}
	return preds
}

// UniquePred returns the single predecessor of b, or NoBlock.
func (f *Func) UniquePred(b BlockID) BlockID {
	preds := f.Preds(b)
	if len(preds) != 1 {
		return NoBlock
	}
	return preds[0]
}

// UniqueSucc returns the single distinct successor of b, or NoBlock.
func (f *Func) UniqueSucc(b BlockID) BlockID {
	succs := f.Succs(b)
	if len(succs) == 0 {
		return NoBlock
	}
	for _, s := range succs[1:] {
		if s != succs[0] {
			return NoBlock
		}
	}
	return succs[0]
}

// HasEdge reports whether b has s as a direct successor.
func (f *Func) HasEdge(b, s BlockID) bool {
	for _, x := range f.Succs(b) {
		if x == s {
			return true
		}
	}
	return false
}

// ReplaceSuccessor retargets every edge b→old to b→new. Phis are left
// untouched. It reports whether any edge was changed.
func (f *Func) ReplaceSuccessor(b, old, new BlockID) bool {
	t := f.Terminator(b)
	if t == nil {
		return false
	}
	changed := false
	for i, s := range t.Succs {
		if s == old {
			t.Succs[i] = new
			changed = true
		}
	}
	return changed
}

// SplitEdge inserts a new block on the edge from→to and returns it. The new
// block is placed right after from in the layout, and phis in to that named
// from as an incoming block now name the new block.
func (f *Func) SplitEdge(from, to BlockID, name string) BlockID {
	mid := f.NewBlock(name)
	f.MoveBlockAfter(mid, from)
	br := f.NewInstr(OpBr)
	br.Succs = []BlockID{to}
	f.Append(mid, br.ID)
	f.ReplaceSuccessor(from, to, mid)
	for _, phi := range f.Phis(to) {
		f.instrs[phi].SetIncomingBlock(from, mid)
	}
	return mid
}

// RemoveBlock erases b and every instruction in it, and drops b from the
// incoming lists of phis in its successors.
func (f *Func) RemoveBlock(b BlockID) {
	blk := f.blocks[b]
	for _, s := range f.Succs(b) {
		if !f.IsLive(s) || s == b {
			continue
		}
		for _, phi := range f.Phis(s) {
			f.instrs[phi].RemoveIncoming(b)
		}
	}
	for _, id := range blk.Instrs {
		f.instrs[id].Block = NoBlock
		f.instrs[id].erased = true
	}
	blk.Instrs = nil
	blk.erased = true
	f.removeFromLayout(b)
}

// Reachable returns the set of blocks reachable from the entry.
func (f *Func) Reachable() map[BlockID]bool {
	seen := make(map[BlockID]bool)
	entry := f.Entry()
	if entry == NoBlock {
		return seen
	}
	q := lane.NewQueue()
	seen[entry] = true
	for q.Enqueue(entry); !q.Empty(); {
		b := q.Dequeue().(BlockID)
		for _, s := range f.Succs(b) {
			if !seen[s] {
				seen[s] = true
				q.Enqueue(s)
			}
		}
	}
	return seen
}

// EliminateUnreachable removes every block that cannot be reached from the
// entry and returns how many were removed.
func (f *Func) EliminateUnreachable() int {
	seen := f.Reachable()
	var dead []BlockID
	for _, b := range f.layout {
		if !seen[b] {
			dead = append(dead, b)
		}
	}
	for _, b := range dead {
		f.RemoveBlock(b)
	}
	return len(dead)
}

package loop

import (
	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/ir"
)

// Simplify rewrites every reachable loop of fn into simplified form. A loop
// gets
//
//   - a preheader: a single outside block whose only successor is the header,
//   - a dedicated latch: a single back edge source that the header does not
//     branch to directly, so the loop body and the back edge are distinct,
//   - dedicated exits: exit blocks reached from inside the loop only.
//
// Simplify reports whether fn was changed.
func Simplify(fn *ir.Func) bool {
	changed := false
	for {
		forest := Discover(fn, dom.New(fn))
		step := false
		for _, l := range forest.Loops() {
			if simplifyLoop(fn, l) {
				step = true
				break // Structure changed; rediscover.
			}
		}
		if !step {
			return changed
		}
		changed = true
	}
}

func simplifyLoop(fn *ir.Func, l *Loop) bool {
	h := l.header
	var outside, inside []ir.BlockID
	for _, p := range fn.Preds(h) {
		if l.members[p] {
			inside = append(inside, p)
		} else {
			outside = append(outside, p)
		}
	}
	if len(outside) == 0 {
		return false // Entry or unreachable header; left alone.
	}
	if l.Preheader() == ir.NoBlock {
		ph := redirect(fn, outside, h, fn.Block(h).Name+".preheader")
		fn.MoveBlockBefore(ph, h)
		return true
	}
	if needsLatch(fn, h, inside) {
		latch := redirect(fn, inside, h, fn.Block(h).Name+".latch")
		fn.MoveBlockAfter(latch, inside[len(inside)-1])
		return true
	}
	for _, x := range l.ExitBlocks() {
		var in []ir.BlockID
		dedicated := true
		for _, p := range fn.Preds(x) {
			if l.members[p] {
				in = append(in, p)
			} else {
				dedicated = false
			}
		}
		if !dedicated {
			e := redirect(fn, in, x, fn.Block(x).Name+".loopexit")
			fn.MoveBlockBefore(e, x)
			return true
		}
	}
	return false
}

func needsLatch(fn *ir.Func, h ir.BlockID, latches []ir.BlockID) bool {
	if len(latches) != 1 {
		return true
	}
	latch := latches[0]
	return latch == h || fn.HasEdge(h, latch)
}

// redirect routes every edge from preds to target through a new block and
// returns it. Phis of target are split: the values flowing in from preds
// now flow in from the new block, through a new phi when they differ.
func redirect(fn *ir.Func, preds []ir.BlockID, target ir.BlockID, name string) ir.BlockID {
	nb := fn.NewBlock(name)
	for _, p := range preds {
		fn.ReplaceSuccessor(p, target, nb)
	}
	for _, id := range fn.Phis(target) {
		phi := fn.Instr(id)
		var vals []ir.Value
		for _, p := range preds {
			if v, ok := phi.IncomingFor(p); ok {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		merged := vals[0]
		if !allSame(vals) {
			np := fn.NewInstr(ir.OpPhi)
			np.Name = phi.Name
			for _, p := range preds {
				if v, ok := phi.IncomingFor(p); ok {
					np.AddIncoming(v, p)
				}
			}
			fn.Append(nb, np.ID)
			merged = np.Value()
		}
		for _, p := range preds {
			phi.RemoveIncoming(p)
		}
		phi.AddIncoming(merged, nb)
	}
	br := fn.NewInstr(ir.OpBr)
	br.Succs = []ir.BlockID{target}
	fn.Append(nb, br.ID)
	return nb
}

func allSame(vals []ir.Value) bool {
	for _, v := range vals[1:] {
		if v != vals[0] {
			return false
		}
	}
	return true
}

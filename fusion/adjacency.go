package fusion

import (
	"fmt"

	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
)

// AreAdjacent reports whether control leaving a flows straight into the
// entry of b: a's guard branches to it when a is guarded, otherwise one of
// a's exiting blocks does.
func AreAdjacent(a, b *loop.Loop) bool {
	fn := a.Func()
	eb := Entry(b)
	if eb == ir.NoBlock {
		return false
	}
	if g := Guard(a); g != ir.NoBlock {
		return fn.HasEdge(g, eb)
	}
	for _, x := range a.ExitingBlocks() {
		if fn.HasEdge(x, eb) {
			return true
		}
	}
	return false
}

// intervening returns the blocks control passes through between leaving a
// and entering the header of b, in execution order.
func intervening(a, b *loop.Loop) []ir.BlockID {
	var blocks []ir.BlockID
	add := func(x ir.BlockID) {
		if x == ir.NoBlock {
			return
		}
		for _, y := range blocks {
			if y == x {
				return
			}
		}
		blocks = append(blocks, x)
	}
	if IsGuarded(a) {
		add(a.ExitBlock())
	}
	add(Guard(b))
	add(b.Preheader())
	return blocks
}

// interveningWork returns why the code between a and b cannot run before a,
// or "" if it can. Fusion hoists that code above a; it must hold no phis,
// be safe to speculate, and only use values available at the entry of a.
func interveningWork(an Analyses, a, b *loop.Loop) string {
	fn := a.Func()
	entry := Entry(a)
	hoisted := make(map[ir.InstrID]bool)
	for _, blk := range intervening(a, b) {
		if len(fn.Phis(blk)) > 0 {
			return fmt.Sprintf("phi in %s", fn.BlockName(blk))
		}
		for _, id := range fn.Block(blk).Instrs {
			in := fn.Instr(id)
			if in.Op.IsTerminator() {
				continue
			}
			if !fn.IsSafeToSpeculate(id) {
				return fmt.Sprintf("%s in %s cannot move above the first loop", in.Value(), fn.BlockName(blk))
			}
			for _, v := range in.Args {
				if !v.IsInst() || hoisted[v.InstrID()] {
					continue
				}
				if !an.Dominates(fn.Instr(v.InstrID()).Block, entry) {
					return fmt.Sprintf("%s in %s uses %s", in.Value(), fn.BlockName(blk), v)
				}
			}
			hoisted[id] = true
		}
	}
	return ""
}

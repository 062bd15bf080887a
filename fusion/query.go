package fusion

import (
	"fmt"

	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
)

// IsFusionEligible reports whether l can take part in a fusion. Besides being
// innermost with a preheader, a single latch, a single exiting block and a
// dedicated exit, the header of l must be its exiting block and branch to the
// body, its latch must hold no phis, and its header and latch must hold only
// phis, pure instructions and terminators. The merge moves header and latch
// code across the other loop and relies on these. See Ineligibility.
func IsFusionEligible(l *loop.Loop) bool { return Ineligibility(l) == "" }

// Ineligibility returns why l cannot take part in a fusion, or "" if it can.
// An eligible loop is innermost and in simplified form, with a single
// exiting block and a single exit block. Its header is the exiting block
// and, like its latch, computes nothing but values.
func Ineligibility(l *loop.Loop) string {
	fn := l.Func()
	switch {
	case !l.IsInnermost():
		return "not innermost"
	case l.Preheader() == ir.NoBlock:
		return "no preheader"
	case l.Latch() == ir.NoBlock:
		return fmt.Sprintf("%d latches", len(l.Latches()))
	}
	if n := len(l.ExitingBlocks()); n != 1 {
		return fmt.Sprintf("%d exiting blocks", n)
	}
	if n := len(l.ExitBlocks()); n != 1 {
		return fmt.Sprintf("%d exit blocks", n)
	}
	if !l.IsSimplified() {
		return "exit block is not dedicated"
	}
	h, latch := l.Header(), l.Latch()
	if l.ExitingBlock() != h {
		return "header does not exit"
	}
	if body := Body(l); body == ir.NoBlock || body == latch || !fn.HasEdge(h, body) {
		return "header does not branch to the body"
	}
	if len(fn.Phis(latch)) > 0 {
		return "phi in latch"
	}
	for _, b := range []ir.BlockID{h, latch} {
		for _, id := range fn.Block(b).Instrs {
			in := fn.Instr(id)
			if in.Op != ir.OpPhi && !in.Op.IsTerminator() && !in.Op.IsPure() {
				return fmt.Sprintf("%s in %s", in.Op, fn.BlockName(b))
			}
		}
	}
	return ""
}

// Guard returns the block whose conditional branch decides whether l runs at
// all, or NoBlock. It is the single predecessor of the preheader, ending in a
// conditional branch whose other target is the exit block of l or the
// block the exit falls through to.
func Guard(l *loop.Loop) ir.BlockID {
	fn := l.Func()
	ph, exit := l.Preheader(), l.ExitBlock()
	if ph == ir.NoBlock || exit == ir.NoBlock {
		return ir.NoBlock
	}
	g := fn.UniquePred(ph)
	if g == ir.NoBlock {
		return ir.NoBlock
	}
	t := fn.Terminator(g)
	if t == nil || t.TermKind() != ir.TermCondBr {
		return ir.NoBlock
	}
	other := t.Succs[0]
	if other == ph {
		other = t.Succs[1]
	}
	if other != ph && (other == exit || other == fn.UniqueSucc(exit)) {
		return g
	}
	return ir.NoBlock
}

// IsGuarded reports whether l runs under a guard branch.
func IsGuarded(l *loop.Loop) bool { return Guard(l) != ir.NoBlock }

// Entry returns the block control enters l through: the guard when l is
// guarded, the preheader otherwise.
func Entry(l *loop.Loop) ir.BlockID {
	if g := Guard(l); g != ir.NoBlock {
		return g
	}
	return l.Preheader()
}

// Body returns the first block of l in layout order after the header, or
// NoBlock.
func Body(l *loop.Loop) ir.BlockID {
	blocks := l.Blocks()
	if len(blocks) < 2 {
		return ir.NoBlock
	}
	return blocks[1]
}

// skipTarget returns the successor of the guard of l that bypasses l.
func skipTarget(l *loop.Loop) ir.BlockID {
	g := Guard(l)
	if g == ir.NoBlock {
		return ir.NoBlock
	}
	t := l.Func().Terminator(g)
	if t.Succs[0] == l.Preheader() {
		return t.Succs[1]
	}
	return t.Succs[0]
}

package loop

import (
	"bytes"
	"fmt"

	"github.com/nickng/loopopt/ir"
)

// Info describes the canonical induction variable of a loop: a header phi
// taking Init from the preheader and Phi+Step from the latch.
type Info struct {
	Phi    ir.InstrID // Induction variable.
	Init   ir.Value   // Incoming value from the preheader.
	Step   int64      // Signed increment per iteration.
	Update ir.InstrID // Instruction computing the next value.

	// Cmp is the exit test in the exiting block, or NoInstr. Pred is
	// normalised so that the loop keeps iterating while `Phi Pred Bound`.
	Cmp   ir.InstrID
	Pred  ir.Pred
	Bound ir.Value
}

// HasExitTest reports whether the exit comparison was recognised.
func (i *Info) HasExitTest() bool { return i.Cmp != ir.NoInstr }

func (i *Info) String() string {
	var buf bytes.Buffer
	iv := ir.Inst(i.Phi)
	buf.WriteString(fmt.Sprintf("%s = %s; ", iv, i.Init))
	if i.HasExitTest() {
		buf.WriteString(fmt.Sprintf("%s %s %s; ", iv, i.Pred, i.Bound))
	}
	if i.Step > 0 {
		buf.WriteString(fmt.Sprintf("%s = %s + %d", iv, iv, i.Step))
	} else {
		buf.WriteString(fmt.Sprintf("%s = %s - %d", iv, iv, -i.Step))
	}
	return buf.String()
}

// CanonicalIV returns the canonical induction variable of l. Among several
// candidate phis, the one driving the exit test wins. It needs a preheader
// and a single latch.
func (l *Loop) CanonicalIV() (*Info, bool) {
	ph, latch := l.Preheader(), l.Latch()
	if ph == ir.NoBlock || latch == ir.NoBlock {
		return nil, false
	}
	var found *Info
	for _, phi := range l.fn.Phis(l.header) {
		info, ok := l.inductionPhi(phi, ph, latch)
		if !ok {
			continue
		}
		l.exitTest(info)
		if info.HasExitTest() {
			return info, true
		}
		if found == nil {
			found = info
		}
	}
	return found, found != nil
}

func (l *Loop) inductionPhi(id ir.InstrID, ph, latch ir.BlockID) (*Info, bool) {
	phi := l.fn.Instr(id)
	if len(phi.Args) != 2 {
		return nil, false
	}
	init, ok := phi.IncomingFor(ph)
	if !ok {
		return nil, false
	}
	next, ok := phi.IncomingFor(latch)
	if !ok || !next.IsInst() {
		return nil, false
	}
	upd := l.fn.Instr(next.InstrID())
	if !l.Contains(upd.Block) || len(upd.Args) != 2 {
		return nil, false
	}
	self := phi.Value()
	var step int64
	switch {
	case upd.Op == ir.OpAdd && upd.Args[0] == self && upd.Args[1].IsConst():
		step = upd.Args[1].Const
	case upd.Op == ir.OpAdd && upd.Args[1] == self && upd.Args[0].IsConst():
		step = upd.Args[0].Const
	case upd.Op == ir.OpSub && upd.Args[0] == self && upd.Args[1].IsConst():
		step = -upd.Args[1].Const
	default:
		return nil, false
	}
	if step == 0 {
		return nil, false
	}
	return &Info{
		Phi:    id,
		Init:   init,
		Step:   step,
		Update: upd.ID,
		Cmp:    ir.NoInstr,
	}, true
}

// exitTest fills in the exit comparison when the single exiting block ends
// in a conditional branch on `iv pred bound` with an invariant bound.
func (l *Loop) exitTest(info *Info) {
	exiting := l.ExitingBlock()
	if exiting == ir.NoBlock {
		return
	}
	t := l.fn.Terminator(exiting)
	if t == nil || t.TermKind() != ir.TermCondBr || !t.Args[0].IsInst() {
		return
	}
	cmp := l.fn.Instr(t.Args[0].InstrID())
	if cmp.Op != ir.OpCmp {
		return
	}
	iv := ir.Inst(info.Phi)
	pred := cmp.Pred
	var bound ir.Value
	switch {
	case cmp.Args[0] == iv:
		bound = cmp.Args[1]
	case cmp.Args[1] == iv:
		bound, pred = cmp.Args[0], pred.Swap()
	default:
		return
	}
	if !l.IsInvariant(bound) {
		return
	}
	if !l.Contains(t.Succs[0]) {
		pred = pred.Negate() // The true edge leaves the loop.
	}
	info.Cmp, info.Pred, info.Bound = cmp.ID, pred, bound
}

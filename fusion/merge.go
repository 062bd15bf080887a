package fusion

import (
	"github.com/pkg/errors"

	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
	"github.com/nickng/loopopt/scev"
)

var (
	ErrMissingIV  = errors.New("missing induction variable")
	ErrShape      = errors.New("unexpected loop shape")
	ErrIncomplete = errors.New("fusion left incomplete")
)

// merger holds the structural blocks of the two loops being fused.
type merger struct {
	fn       *ir.Func
	a, b     *loop.Loop
	ivA, ivB *loop.Info

	phA, hA, latchA, exitA, guardA               ir.BlockID
	phB, hB, bodyB, latchB, exitB, guardB, doneB ir.BlockID

	err error
}

// Fuse splices b into a so that every iteration runs the body of a and then
// the body of b. The code between the loops moves above a, the header of a
// exits straight to the exit of b, and b is erased from forest. The blocks
// of b left unreachable are not removed.
//
// Fuse checks the shape of both loops before changing anything. It fails
// with ErrMissingIV when either loop has no canonical induction variable
// and with ErrShape when the loops are not laid out as adjacent eligible
// loops; fn is then unchanged.
//
// An error wrapping ErrIncomplete means an instruction could not be moved
// after the rewrite had started, and fn is left partially rewritten. Every
// move targets the terminator or first instruction of a block the shape
// checks found live, so this does not happen on a verified function.
func Fuse(forest *loop.Forest, a, b *loop.Loop) error {
	m, err := newMerger(a, b)
	if err != nil {
		return err
	}
	m.hoist()
	m.unify()
	m.moveHeader()
	m.moveLatch()
	m.splice()
	if m.err != nil {
		return errors.Wrapf(ErrIncomplete, "fuse: %v", m.err)
	}
	forest.Merge(a, b, m.latchB)
	return nil
}

func newMerger(a, b *loop.Loop) (*merger, error) {
	fn := a.Func()
	m := &merger{fn: fn, a: a, b: b}
	var ok bool
	if m.ivA, ok = a.CanonicalIV(); !ok {
		return nil, errors.Wrapf(ErrMissingIV, "loop at %s", fn.BlockName(a.Header()))
	}
	if m.ivB, ok = b.CanonicalIV(); !ok {
		return nil, errors.Wrapf(ErrMissingIV, "loop at %s", fn.BlockName(b.Header()))
	}
	for _, l := range []*loop.Loop{a, b} {
		if why := Ineligibility(l); why != "" {
			return nil, errors.Wrapf(ErrShape, "loop at %s: %s", fn.BlockName(l.Header()), why)
		}
	}
	m.phA, m.hA, m.latchA, m.exitA, m.guardA = a.Preheader(), a.Header(), a.Latch(), a.ExitBlock(), Guard(a)
	m.phB, m.hB, m.bodyB, m.latchB, m.exitB, m.guardB = b.Preheader(), b.Header(), Body(b), b.Latch(), b.ExitBlock(), Guard(b)
	m.doneB = skipTarget(b)

	switch {
	case (m.guardA == ir.NoBlock) != (m.guardB == ir.NoBlock):
		return nil, errors.Wrap(ErrShape, "only one loop is guarded")
	case m.guardA != ir.NoBlock && skipTarget(a) != m.guardB:
		return nil, errors.Wrapf(ErrShape, "guard %s does not skip to %s", fn.BlockName(m.guardA), fn.BlockName(m.guardB))
	case m.guardA == ir.NoBlock && m.exitA != m.phB:
		return nil, errors.Wrapf(ErrShape, "%s does not exit into %s", fn.BlockName(m.hA), fn.BlockName(m.phB))
	case len(fn.Phis(m.bodyB)) > 0:
		return nil, errors.Wrapf(ErrShape, "phi in %s", fn.BlockName(m.bodyB))
	}
	for _, blk := range intervening(a, b) {
		if len(fn.Phis(blk)) > 0 {
			return nil, errors.Wrapf(ErrShape, "phi in %s", fn.BlockName(blk))
		}
	}
	return m, nil
}

func (m *merger) move(id, pos ir.InstrID) {
	if err := m.fn.MoveBefore(id, pos); err != nil && m.err == nil {
		m.err = err
	}
}

// hoist moves the code between the loops above a: what runs before the
// guard of b goes to the guard of a, the preheader of b to the preheader
// of a.
func (m *merger) hoist() {
	fn := m.fn
	for _, blk := range intervening(m.a, m.b) {
		to := fn.Terminator(m.phA).ID
		if m.guardA != ir.NoBlock && blk != m.phB {
			to = fn.Terminator(m.guardA).ID
		}
		for _, id := range instrs(fn, blk) {
			if !fn.Instr(id).Op.IsTerminator() {
				m.move(id, to)
			}
		}
	}
}

// unify replaces the induction variable of b by that of a when both start
// at the same value and take the same step. Otherwise the induction
// variable of b is carried into the fused loop like any other phi.
func (m *merger) unify() {
	fn := m.fn
	if !sameIV(fn, m.ivA, m.ivB) {
		return
	}
	fn.ReplaceAllUsesWith(m.ivB.Phi, ir.Inst(m.ivA.Phi))
	fn.Erase(m.ivB.Phi)
	if !fn.HasUsers(m.ivB.Update) {
		fn.Erase(m.ivB.Update)
	}
}

func sameIV(fn *ir.Func, x, y *loop.Info) bool {
	if x.Step != y.Step {
		return false
	}
	return x.Init == y.Init || scev.Of(fn, x.Init, nil).Equal(scev.Of(fn, y.Init, nil))
}

// moveHeader moves the phis of b's header, and the values it computes for
// anything but its own exit branch, into the header of a.
func (m *merger) moveHeader() {
	fn := m.fn
	term := fn.Terminator(m.hB).ID
	for _, id := range instrs(fn, m.hB) {
		in := fn.Instr(id)
		switch {
		case in.Op == ir.OpPhi:
			m.move(id, firstNonPhi(fn, m.hA))
			in.SetIncomingBlock(m.phB, m.phA)
			in.SetIncomingBlock(m.latchB, m.latchA)
		case id == term || usedOnlyBy(fn, id, term):
		default:
			m.move(id, fn.Terminator(m.hA).ID)
		}
	}
}

// moveLatch moves the work of b's latch to the start of a's latch.
func (m *merger) moveLatch() {
	fn := m.fn
	first := fn.Block(m.latchA).Instrs[0]
	for _, id := range instrs(fn, m.latchB) {
		if !fn.Instr(id).Op.IsTerminator() {
			m.move(id, first)
		}
	}
}

// splice rewires the control flow. The body of a falls into the body of b,
// which falls into the latch of a; the header of a exits to the exit of b.
// The preheader, header and latch of b are left unreachable.
func (m *merger) splice() {
	fn := m.fn
	fn.ReplaceSuccessor(m.hA, m.exitA, m.exitB)
	for _, p := range fn.Preds(m.latchA) {
		fn.ReplaceSuccessor(p, m.latchA, m.bodyB)
	}
	for _, p := range fn.Preds(m.latchB) {
		if m.b.Contains(p) {
			fn.ReplaceSuccessor(p, m.latchB, m.latchA)
		}
	}
	fn.ReplaceSuccessor(m.hB, m.bodyB, m.latchB)
	for _, phi := range fn.Phis(m.exitB) {
		fn.Instr(phi).SetIncomingBlock(m.hB, m.hA)
	}
	if m.guardA != ir.NoBlock {
		fn.ReplaceSuccessor(m.guardA, m.guardB, m.doneB)
		for _, phi := range fn.Phis(m.doneB) {
			fn.Instr(phi).SetIncomingBlock(m.guardB, m.guardA)
		}
	}

	last := m.bodyB
	for _, blk := range m.b.Blocks() {
		if blk != m.hB && blk != m.latchB {
			last = blk
		}
	}
	fn.MoveBlockAfter(m.latchA, last)
}

func instrs(fn *ir.Func, b ir.BlockID) []ir.InstrID {
	return append([]ir.InstrID(nil), fn.Block(b).Instrs...)
}

func firstNonPhi(fn *ir.Func, b ir.BlockID) ir.InstrID {
	ids := fn.Block(b).Instrs
	return ids[len(fn.Phis(b))]
}

// usedOnlyBy reports whether user is the only instruction using id, if any.
func usedOnlyBy(fn *ir.Func, id, user ir.InstrID) bool {
	for _, u := range fn.Users(id) {
		if u != user {
			return false
		}
	}
	return true
}

// Package peephole rewrites single arithmetic instructions, and pairs of
// them, into cheaper equivalents inside each block.
//
// The rewrites are
//
//	a = b + C; c = a - C   c -> b   (and a = b - C; c = a + C)
//	x + 0, 0 + x, x - 0    -> x
//	x * 1, 1 * x           -> x
//	x * 2^k                -> x << k
//	x * (2^k+1)            -> (x << k) + x
//	x * (2^k-1)            -> (x << k) - x
//	x / 1                  -> x
//	x /s -1                -> neg x
//	x /u 2^k               -> x >>u k
//
// Signed division by a power of two is left alone: an arithmetic shift
// rounds toward negative infinity where sdiv rounds toward zero.
//
// Once a block is rewritten, every binary instruction without users that
// cannot trap is erased.
package peephole

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/ir"
)

// Pass is the peephole optimizer.
type Pass struct {
	log *logging.Logger

	rewrites int
	erased   int
}

// Option configures a Pass.
type Option func(*Pass)

// WithLogger sets the logger rewrites are traced to.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pass) { p.log = l.With("peephole") }
}

// New returns a peephole pass.
func New(opts ...Option) *Pass {
	p := &Pass{log: logging.Nop().With("peephole")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run is a shorthand for New().Run(fn).
func Run(fn *ir.Func) bool { return New().Run(fn) }

// Rewrites returns the number of instructions replaced by the last run.
func (p *Pass) Rewrites() int { return p.rewrites }

// Erased returns the number of dead instructions removed by the last run.
func (p *Pass) Erased() int { return p.erased }

// Run rewrites every block of fn and reports whether fn was changed.
func (p *Pass) Run(fn *ir.Func) bool {
	p.rewrites, p.erased = 0, 0
	changed := false
	for _, b := range fn.Blocks() {
		if p.runOnBlock(fn, b) {
			changed = true
		}
	}
	return changed
}

func (p *Pass) runOnBlock(fn *ir.Func, b ir.BlockID) bool {
	changed := false
	for _, id := range append([]ir.InstrID(nil), fn.Block(b).Instrs...) {
		in := fn.Instr(id)
		if in.IsErased() || in.Block != b || !in.Op.IsBinary() || !fn.HasUsers(id) {
			continue
		}
		r := rewriter{fn: fn, in: in}
		var (
			rule string
			ok   bool
			err  error
		)
		switch in.Op {
		case ir.OpAdd, ir.OpSub:
			if rule, ok = r.combine(); !ok {
				rule, ok = r.identity()
			}
		case ir.OpMul:
			if rule, ok = r.identity(); !ok {
				rule, ok, err = r.mulStrength()
			}
		case ir.OpSDiv, ir.OpUDiv:
			rule, ok, err = r.div()
		}
		if err != nil {
			p.log.Warnw("Cannot rewrite instruction", "func", fn.Name, "block", fn.BlockName(b), "error", err)
			continue
		}
		if ok {
			p.rewrites++
			p.log.Tracef("%s: %s: %s", fn.Name, fn.BlockName(b), rule)
			changed = true
		}
	}

	instrs := append([]ir.InstrID(nil), fn.Block(b).Instrs...)
	for i := len(instrs) - 1; i >= 0; i-- {
		id := instrs[i]
		if fn.Instr(id).Op.IsBinary() && fn.IsSafeToSpeculate(id) && !fn.HasUsers(id) {
			fn.Erase(id)
			p.erased++
			changed = true
		}
	}
	return changed
}

// rewriter rewrites the instruction in.
type rewriter struct {
	fn *ir.Func
	in *ir.Instr
}

// constOperand returns the constant operand of in and the other operand.
// The first operand is only looked at for commutative ops.
func (r rewriter) constOperand() (c int64, other ir.Value, ok bool) {
	x, y := r.in.Args[0], r.in.Args[1]
	if y.IsConst() {
		return y.Const, x, true
	}
	if x.IsConst() && r.in.Op.IsCommutative() {
		return x.Const, y, true
	}
	return 0, ir.Value{}, false
}

func (r rewriter) format(id ir.InstrID) string {
	return ir.NewPrinter().FormatInstr(r.fn, id)
}

// replace rewrites every use of in to v.
func (r rewriter) replace(v ir.Value) {
	r.fn.ReplaceAllUsesWith(r.in.ID, v)
}

// emitAfter inserts a new instruction after pos and returns its value.
func (r rewriter) emitAfter(pos ir.InstrID, op ir.Op, args ...ir.Value) (ir.Value, error) {
	in := r.fn.NewInstr(op, args...)
	if err := r.fn.InsertAfter(pos, in.ID); err != nil {
		return ir.Value{}, errors.Wrapf(err, "emit %s", op)
	}
	return in.Value(), nil
}

// combine folds a user undoing in: a = b + C; c = a - C makes c b.
func (r rewriter) combine() (string, bool) {
	c, b, ok := r.constOperand()
	if !ok {
		return "", false
	}
	undo := ir.OpSub
	if r.in.Op == ir.OpSub {
		undo = ir.OpAdd
	}
	a := r.in.Value()
	folded := 0
	for _, u := range r.fn.Users(r.in.ID) {
		user := r.fn.Instr(u)
		if user.Op != undo {
			continue
		}
		x, y := user.Args[0], user.Args[1]
		if (x == a && y.IsConstValue(c)) || (undo == ir.OpAdd && y == a && x.IsConstValue(c)) {
			r.fn.ReplaceAllUsesWith(u, b)
			folded++
		}
	}
	if folded == 0 {
		return "", false
	}
	return "combine " + r.format(r.in.ID), true
}

// identity removes an operation by its neutral element.
func (r rewriter) identity() (string, bool) {
	c, other, ok := r.constOperand()
	if !ok {
		return "", false
	}
	neutral := int64(0)
	if r.in.Op == ir.OpMul {
		neutral = 1
	}
	if c != neutral {
		return "", false
	}
	rule := "identity " + r.format(r.in.ID)
	r.replace(other)
	return rule, true
}

// mulStrength turns a multiplication by a constant near a power of two into
// shifts.
func (r rewriter) mulStrength() (string, bool, error) {
	c, x, ok := r.constOperand()
	if !ok || c <= 1 {
		return "", false, nil
	}
	rule := "strength " + r.format(r.in.ID)
	if k, ok := exactLog2(uint64(c)); ok {
		shl, err := r.emitAfter(r.in.ID, ir.OpShl, x, ir.Const(int64(k)))
		if err != nil {
			return "", false, err
		}
		r.replace(shl)
		return rule, true, nil
	}
	op := ir.OpAdd
	k, ok := exactLog2(uint64(c) - 1)
	if !ok {
		op = ir.OpSub
		if k, ok = exactLog2(uint64(c) + 1); !ok {
			return "", false, nil
		}
	}
	shl, err := r.emitAfter(r.in.ID, ir.OpShl, x, ir.Const(int64(k)))
	if err != nil {
		return "", false, err
	}
	fix, err := r.emitAfter(shl.InstrID(), op, shl, x)
	if err != nil {
		return "", false, err
	}
	r.replace(fix)
	return rule, true, nil
}

// div simplifies a division by a constant divisor.
func (r rewriter) div() (string, bool, error) {
	x, d := r.in.Args[0], r.in.Args[1]
	if !d.IsConst() {
		return "", false, nil
	}
	rule := "division " + r.format(r.in.ID)
	var (
		v   ir.Value
		err error
	)
	switch {
	case d.Const == 1:
		v = x
	case d.Const == -1 && r.in.Op == ir.OpSDiv:
		v, err = r.emitAfter(r.in.ID, ir.OpNeg, x)
	case r.in.Op == ir.OpUDiv:
		k, ok := exactLog2(uint64(d.Const))
		if !ok {
			return "", false, nil
		}
		v, err = r.emitAfter(r.in.ID, ir.OpLShr, x, ir.Const(int64(k)))
	default:
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	r.replace(v)
	return rule, true, nil
}

// exactLog2 returns k when c is 2^k.
func exactLog2(c uint64) (int, bool) {
	if bits.OnesCount64(c) != 1 {
		return 0, false
	}
	return bits.TrailingZeros64(c), true
}

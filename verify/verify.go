// Package verify checks the well-formedness of an ir.Func.
package verify

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/ir"
)

// ErrMalformed is the cause of every violation reported by Func.
var ErrMalformed = errors.New("malformed function")

// Func checks fn and returns every violation found, combined with
// multierr, or nil.
func Func(fn *ir.Func) error {
	v := &verifier{fn: fn}
	v.run()
	return v.err
}

type verifier struct {
	fn  *ir.Func
	dt  *dom.Tree
	err error
}

func (v *verifier) failf(format string, args ...interface{}) {
	v.err = multierr.Append(v.err, errors.Wrapf(ErrMalformed, format, args...))
}

func (v *verifier) run() {
	fn := v.fn
	entry := fn.Entry()
	if entry == ir.NoBlock {
		v.failf("%s: no blocks", fn.Name)
		return
	}
	if preds := fn.Preds(entry); len(preds) > 0 {
		v.failf("%s: entry block has %d predecessors", fn.BlockName(entry), len(preds))
	}
	for _, b := range fn.Blocks() {
		v.block(b)
	}
	if v.err != nil {
		return // Dominance is meaningless on a broken CFG.
	}
	v.dt = dom.New(fn)
	for _, b := range fn.Blocks() {
		for _, id := range fn.Block(b).Instrs {
			v.dominance(fn.Instr(id))
		}
	}
}

func (v *verifier) block(b ir.BlockID) {
	fn := v.fn
	blk := fn.Block(b)
	name := fn.BlockName(b)
	if len(blk.Instrs) == 0 {
		v.failf("%s: empty block", name)
		return
	}
	phis := true
	for i, id := range blk.Instrs {
		if int(id) < 0 || int(id) >= fn.NumInstrSlots() {
			v.failf("%s: instruction %d out of range", name, id)
			continue
		}
		in := fn.Instr(id)
		if in.IsErased() {
			v.failf("%s: erased instruction %s still listed", name, in.Value())
			continue
		}
		if in.Block != b {
			v.failf("%s: %s claims to be in %s", name, in.Value(), fn.BlockName(in.Block))
		}
		last := i == len(blk.Instrs)-1
		switch {
		case last && !in.Op.IsTerminator():
			v.failf("%s: does not end in a terminator", name)
		case !last && in.Op.IsTerminator():
			v.failf("%s: terminator %s before end of block", name, in.Op)
		}
		if in.Op == ir.OpPhi {
			if !phis {
				v.failf("%s: phi %s after non-phi instruction", name, in.Value())
			}
			v.phi(b, in)
		} else {
			phis = false
		}
		v.operands(b, in)
		if in.Op.IsTerminator() {
			v.terminator(b, in)
		}
	}
}

func (v *verifier) terminator(b ir.BlockID, in *ir.Instr) {
	name := v.fn.BlockName(b)
	want := map[ir.TermKind]int{ir.TermBr: 1, ir.TermCondBr: 2, ir.TermRet: 0}[in.TermKind()]
	if len(in.Succs) != want {
		v.failf("%s: %s has %d successors, want %d", name, in.Op, len(in.Succs), want)
	}
	if in.TermKind() == ir.TermCondBr && len(in.Args) != 1 {
		v.failf("%s: condbr has %d operands", name, len(in.Args))
	}
	for _, s := range in.Succs {
		if !v.fn.IsLive(s) {
			v.failf("%s: branches to dead block %d", name, s)
		}
	}
}

func (v *verifier) phi(b ir.BlockID, in *ir.Instr) {
	fn := v.fn
	name := fn.BlockName(b)
	if len(in.Args) != len(in.Incoming) {
		v.failf("%s: phi %s has %d values for %d blocks", name, in.Value(), len(in.Args), len(in.Incoming))
		return
	}
	preds := fn.Preds(b)
	isPred := make(map[ir.BlockID]bool, len(preds))
	for _, p := range preds {
		isPred[p] = true
	}
	seen := make(map[ir.BlockID]bool)
	for _, from := range in.Incoming {
		switch {
		case seen[from]:
			v.failf("%s: phi %s names %s twice", name, in.Value(), fn.BlockName(from))
		case !isPred[from]:
			v.failf("%s: phi %s has incoming %s which is not a predecessor", name, in.Value(), fn.BlockName(from))
		}
		seen[from] = true
	}
	for _, p := range preds {
		if !seen[p] {
			v.failf("%s: phi %s has no value for predecessor %s", name, in.Value(), fn.BlockName(p))
		}
	}
}

func (v *verifier) operands(b ir.BlockID, in *ir.Instr) {
	fn := v.fn
	for _, a := range in.Args {
		switch a.Kind {
		case ir.ArgValue:
			if a.Index < 0 || a.Index >= fn.NumArgs() {
				v.failf("%s: %s uses argument %s out of range", fn.BlockName(b), in.Value(), a)
			}
		case ir.InstValue:
			id := a.InstrID()
			if id < 0 || int(id) >= fn.NumInstrSlots() {
				v.failf("%s: %s uses unknown %s", fn.BlockName(b), in.Value(), a)
				continue
			}
			def := fn.Instr(id)
			if def.IsErased() || def.Block == ir.NoBlock {
				v.failf("%s: %s uses erased or detached %s", fn.BlockName(b), in.Value(), a)
			} else if !def.Op.HasResult() {
				v.failf("%s: %s uses %s which has no result", fn.BlockName(b), in.Value(), a)
			}
		case ir.InvalidValue:
			v.failf("%s: %s has an invalid operand", fn.BlockName(b), in.Value())
		}
	}
}

// dominance checks that every definition dominates its uses. A phi use is
// checked at the end of the incoming block.
func (v *verifier) dominance(in *ir.Instr) {
	fn := v.fn
	for i, a := range in.Args {
		if !a.IsInst() {
			continue
		}
		def := fn.Instr(a.InstrID())
		if in.Op == ir.OpPhi {
			if !v.dt.Dominates(def.Block, in.Incoming[i]) {
				v.failf("%s: %s does not dominate its use in phi %s from %s",
					fn.BlockName(in.Block), a, in.Value(), fn.BlockName(in.Incoming[i]))
			}
			continue
		}
		if def.ID == in.ID || !dom.InstrDominates(fn, v.dt, def.ID, in.ID) {
			v.failf("%s: %s does not dominate its use in %s", fn.BlockName(in.Block), a, in.Value())
		}
	}
}

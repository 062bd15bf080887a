// Package licm hoists loop-invariant computations into loop preheaders.
//
// An instruction of a loop is invariant when it is not a phi, it can be
// executed speculatively, and every operand is a constant, an argument or
// defined outside the loop. Blocks are visited in layout order, so a chain
// of invariant instructions leaves the loop in a single sweep: once the
// first link is hoisted, the next one only uses values from outside.
//
// An invariant instruction is hoisted before the terminator of the
// preheader when its block dominates every exit block of the loop, or when
// nothing outside the loop uses it. Loops that are not in simplified form
// are skipped. Inner loops are visited before the loops enclosing them.
package licm

import (
	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
)

// Pass is the loop-invariant code motion pass.
type Pass struct {
	log *logging.Logger

	hoisted int
}

// Option configures a Pass.
type Option func(*Pass)

// WithLogger sets the logger hoisting decisions are traced to.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pass) { p.log = l.With("licm") }
}

// New returns a LICM pass.
func New(opts ...Option) *Pass {
	p := &Pass{log: logging.Nop().With("licm")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run is a shorthand for New().Run(fn).
func Run(fn *ir.Func) bool { return New().Run(fn) }

// Hoisted returns the number of instructions hoisted by the last run.
func (p *Pass) Hoisted() int { return p.hoisted }

// Run hoists invariant instructions out of every loop of fn and reports
// whether fn was changed. Only instructions move, so the dominator tree and
// loop forest computed up front stay valid throughout.
func (p *Pass) Run(fn *ir.Func) bool {
	p.hoisted = 0
	dt := dom.New(fn)
	loops := loop.Discover(fn, dt).Loops()
	for i := len(loops) - 1; i >= 0; i-- {
		p.runOnLoop(fn, dt, loops[i])
	}
	return p.hoisted > 0
}

func (p *Pass) runOnLoop(fn *ir.Func, dt *dom.Tree, l *loop.Loop) {
	hdr := fn.BlockName(l.Header())
	if !l.IsSimplified() {
		p.log.Tracef("%s: %s: not in simplified form", fn.Name, hdr)
		return
	}
	ph := l.Preheader()
	for _, b := range l.Blocks() {
		for _, id := range append([]ir.InstrID(nil), fn.Block(b).Instrs...) {
			if !isInvariant(fn, l, id) {
				continue
			}
			if !dominatesExits(dt, l, b) && usedOutside(fn, l, id) {
				p.log.Tracef("%s: %s: keep %s: used after a conditional exit",
					fn.Name, hdr, ir.NewPrinter().FormatInstr(fn, id))
				continue
			}
			if err := fn.MoveBefore(id, fn.Terminator(ph).ID); err != nil {
				p.log.Warnw("Cannot hoist instruction", "func", fn.Name, "loop", hdr, "error", err)
				continue
			}
			p.hoisted++
			p.log.Tracef("%s: %s: hoisted %s to %s",
				fn.Name, hdr, ir.NewPrinter().FormatInstr(fn, id), fn.BlockName(ph))
		}
	}
}

// isInvariant reports whether id computes the same value on every iteration
// of l and can run before the loop.
func isInvariant(fn *ir.Func, l *loop.Loop, id ir.InstrID) bool {
	if fn.Instr(id).Op == ir.OpPhi || !fn.IsSafeToSpeculate(id) {
		return false
	}
	for _, a := range fn.Instr(id).Args {
		if !l.IsInvariant(a) {
			return false
		}
	}
	return true
}

// dominatesExits reports whether b dominates the target of every exit edge
// of l.
func dominatesExits(dt *dom.Tree, l *loop.Loop, b ir.BlockID) bool {
	for _, e := range l.ExitEdges() {
		if !dt.Dominates(b, e.To) {
			return false
		}
	}
	return true
}

func usedOutside(fn *ir.Func, l *loop.Loop, id ir.InstrID) bool {
	for _, u := range fn.Users(id) {
		if !l.ContainsInstr(u) {
			return true
		}
	}
	return false
}

package fusion

import (
	"github.com/nickng/loopopt/depend"
	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
	"github.com/nickng/loopopt/scev"
)

// Analyses is a snapshot of the facts the pass needs about a function. It is
// valid until the function is next changed.
type Analyses interface {
	// Forest returns the loop forest of the function.
	Forest() *loop.Forest
	// Loops returns the innermost loops ordered by header layout position.
	Loops() []*loop.Loop
	Dominates(x, y ir.BlockID) bool
	PostDominates(x, y ir.BlockID) bool
	// TripCount returns the symbolic trip count of l, or false if unknown.
	TripCount(l *loop.Loop) (scev.Expr, bool)
	Depends(src, dst ir.InstrID, crossLoopOnly bool) depend.Result
}

// AnalysisProvider computes a fresh Analyses snapshot of fn.
type AnalysisProvider interface {
	Analyze(fn *ir.Func) Analyses
}

// DefaultProvider computes dominators with dom, loops with loop, trip counts
// with scev and dependences with depend.
type DefaultProvider struct {
	// ArgsNoAlias asserts that distinct pointer arguments never overlap.
	// By default two slice arguments may share an array, and an access
	// through one blocks fusion with a write through the other.
	ArgsNoAlias bool
}

// Analyze implements AnalysisProvider.
func (p DefaultProvider) Analyze(fn *ir.Func) Analyses {
	dt := dom.New(fn)
	forest := loop.Discover(fn, dt)
	return &analyses{
		dt:     dt,
		pdt:    dom.NewPost(fn),
		forest: forest,
		oracle: depend.New(forest, depend.ArgsNoAlias(p.ArgsNoAlias)),
		trips:  make(map[*loop.Loop]tripCount),
	}
}

type tripCount struct {
	expr scev.Expr
	ok   bool
}

type analyses struct {
	dt, pdt *dom.Tree
	forest  *loop.Forest
	oracle  *depend.Oracle
	trips   map[*loop.Loop]tripCount
}

func (a *analyses) Forest() *loop.Forest { return a.forest }

func (a *analyses) Loops() []*loop.Loop { return a.forest.Innermost() }

func (a *analyses) Dominates(x, y ir.BlockID) bool { return a.dt.Dominates(x, y) }

func (a *analyses) PostDominates(x, y ir.BlockID) bool { return a.pdt.Dominates(x, y) }

func (a *analyses) TripCount(l *loop.Loop) (scev.Expr, bool) {
	tc, ok := a.trips[l]
	if !ok {
		tc.expr, tc.ok = scev.TripCount(l)
		a.trips[l] = tc
	}
	return tc.expr, tc.ok
}

func (a *analyses) Depends(src, dst ir.InstrID, crossLoopOnly bool) depend.Result {
	return a.oracle.Depends(src, dst, crossLoopOnly)
}

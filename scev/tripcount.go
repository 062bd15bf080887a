package scev

import (
	"fmt"

	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
)

// Expr is a symbolic trip count: the number of times the header of a loop
// branches into the body.
//
// The count is max(0, ⌊Num / Div⌋). An Exact count comes from a `!=` exit
// test and is Num itself; it is only meaningful when Num is not negative.
type Expr struct {
	Num   Affine
	Div   int64
	Exact bool
}

// Equal reports structural equality of two trip counts.
func (e Expr) Equal(o Expr) bool {
	return e.Div == o.Div && e.Exact == o.Exact && e.Num.Equal(o.Num)
}

// IsConst reports whether the trip count is a known number.
func (e Expr) IsConst() bool { return e.Num.IsConst() && e.Div == 1 }

func (e Expr) String() string {
	if e.Div == 1 {
		return e.Num.String()
	}
	return fmt.Sprintf("(%s) / %d", e.Num, e.Div)
}

// TripCount computes the symbolic trip count of a loop exiting from its
// header on its canonical induction variable. It reports false when the
// count cannot be derived.
func TripCount(l *loop.Loop) (Expr, bool) {
	info, ok := l.CanonicalIV()
	if !ok || !info.HasExitTest() || l.ExitingBlock() != l.Header() {
		return Expr{}, false
	}
	fn := l.Func()
	init := Of(fn, info.Init, nil)
	bound := Of(fn, info.Bound, nil)
	return Count(init, bound, info.Pred, info.Step)
}

// Count derives the trip count of `for iv := init; iv pred bound; iv += step`.
func Count(init, bound Affine, pred ir.Pred, step int64) (Expr, bool) {
	var num Affine
	div := step
	exact := false
	switch {
	case pred == ir.LT && step > 0:
		num = bound.Sub(init).Add(Constant(step - 1))
	case pred == ir.LE && step > 0:
		num = bound.Sub(init).Add(Constant(step))
	case pred == ir.GT && step < 0:
		div = -step
		num = init.Sub(bound).Add(Constant(div - 1))
	case pred == ir.GE && step < 0:
		div = -step
		num = init.Sub(bound).Add(Constant(div))
	case pred == ir.NE && step == 1:
		num, exact = bound.Sub(init), true
	case pred == ir.NE && step == -1:
		num, div, exact = init.Sub(bound), 1, true
	default:
		return Expr{}, false
	}
	if num.IsConst() {
		n := num.Const
		if exact {
			if n < 0 {
				return Expr{}, false // Wraps around.
			}
			return Expr{Num: Constant(n), Div: 1}, true
		}
		if n < 0 {
			n = 0
		}
		return Expr{Num: Constant(n / div), Div: 1}, true
	}
	if q, ok := num.DivExact(div); ok {
		num, div = q, 1
	}
	return Expr{Num: num, Div: div, Exact: exact}, true
}

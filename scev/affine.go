// Package scev derives symbolic expressions for loop-variant integer values
// and loop trip counts.
//
// Expressions are affine combinations of leaf values: anything the
// expansion cannot see through (arguments, phis, loads, calls). Two
// expressions are equal when they are structurally equal after
// normalisation, never by evaluation.
package scev

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/nickng/loopopt/ir"
)

// Term is Coef × Value.
type Term struct {
	Value ir.Value
	Coef  int64
}

// Affine is Σ Terms + Const with terms sorted by value and no zero
// coefficients.
type Affine struct {
	Terms []Term
	Const int64
}

// Constant returns the affine expression c.
func Constant(c int64) Affine { return Affine{Const: c} }

// Leaf returns the affine expression 1×v.
func Leaf(v ir.Value) Affine {
	if v.IsConst() {
		return Constant(v.Const)
	}
	return Affine{Terms: []Term{{Value: v, Coef: 1}}}
}

// IsConst reports whether a has no terms.
func (a Affine) IsConst() bool { return len(a.Terms) == 0 }

// Coef returns the coefficient of v in a.
func (a Affine) Coef(v ir.Value) int64 {
	for _, t := range a.Terms {
		if t.Value == v {
			return t.Coef
		}
	}
	return 0
}

// Without returns a with the term of v removed.
func (a Affine) Without(v ir.Value) Affine {
	out := Affine{Const: a.Const}
	for _, t := range a.Terms {
		if t.Value != v {
			out.Terms = append(out.Terms, t)
		}
	}
	return out
}

// Add returns a + b.
func (a Affine) Add(b Affine) Affine {
	coefs := make(map[ir.Value]int64)
	for _, t := range a.Terms {
		coefs[t.Value] += t.Coef
	}
	for _, t := range b.Terms {
		coefs[t.Value] += t.Coef
	}
	return normalise(coefs, a.Const+b.Const)
}

// Sub returns a - b.
func (a Affine) Sub(b Affine) Affine { return a.Add(b.Scale(-1)) }

// Scale returns k × a.
func (a Affine) Scale(k int64) Affine {
	coefs := make(map[ir.Value]int64)
	for _, t := range a.Terms {
		coefs[t.Value] += k * t.Coef
	}
	return normalise(coefs, k*a.Const)
}

// DivExact returns a / k when k divides every coefficient and the constant.
func (a Affine) DivExact(k int64) (Affine, bool) {
	if k == 0 || a.Const%k != 0 {
		return Affine{}, false
	}
	out := Affine{Const: a.Const / k}
	for _, t := range a.Terms {
		if t.Coef%k != 0 {
			return Affine{}, false
		}
		out.Terms = append(out.Terms, Term{Value: t.Value, Coef: t.Coef / k})
	}
	return out, true
}

// Equal reports structural equality.
func (a Affine) Equal(b Affine) bool {
	if a.Const != b.Const || len(a.Terms) != len(b.Terms) {
		return false
	}
	for i := range a.Terms {
		if a.Terms[i] != b.Terms[i] {
			return false
		}
	}
	return true
}

// Leaves returns the values a depends on.
func (a Affine) Leaves() []ir.Value {
	vals := make([]ir.Value, len(a.Terms))
	for i, t := range a.Terms {
		vals[i] = t.Value
	}
	return vals
}

func (a Affine) String() string {
	if a.IsConst() {
		return fmt.Sprintf("%d", a.Const)
	}
	var buf bytes.Buffer
	for i, t := range a.Terms {
		switch {
		case i == 0 && t.Coef == 1:
			buf.WriteString(t.Value.String())
		case i == 0 && t.Coef == -1:
			buf.WriteString("-" + t.Value.String())
		case i == 0:
			buf.WriteString(fmt.Sprintf("%d*%s", t.Coef, t.Value))
		case t.Coef == 1:
			buf.WriteString(" + " + t.Value.String())
		case t.Coef == -1:
			buf.WriteString(" - " + t.Value.String())
		case t.Coef < 0:
			buf.WriteString(fmt.Sprintf(" - %d*%s", -t.Coef, t.Value))
		default:
			buf.WriteString(fmt.Sprintf(" + %d*%s", t.Coef, t.Value))
		}
	}
	switch {
	case a.Const > 0:
		buf.WriteString(fmt.Sprintf(" + %d", a.Const))
	case a.Const < 0:
		buf.WriteString(fmt.Sprintf(" - %d", -a.Const))
	}
	return buf.String()
}

func normalise(coefs map[ir.Value]int64, c int64) Affine {
	out := Affine{Const: c}
	for v, k := range coefs {
		if k != 0 {
			out.Terms = append(out.Terms, Term{Value: v, Coef: k})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return less(out.Terms[i].Value, out.Terms[j].Value) })
	return out
}

func less(x, y ir.Value) bool {
	if x.Kind != y.Kind {
		return x.Kind < y.Kind
	}
	return x.Index < y.Index
}

// maxDepth bounds the expansion of deep expression chains.
const maxDepth = 32

// Of expands v into an affine expression, looking through additions,
// subtractions, negations, and multiplications or left shifts by constants.
// Values for which leaf returns true are never expanded.
func Of(fn *ir.Func, v ir.Value, leaf func(ir.Value) bool) Affine {
	return expand(fn, v, leaf, 0)
}

func expand(fn *ir.Func, v ir.Value, leaf func(ir.Value) bool, depth int) Affine {
	if !v.IsInst() || depth > maxDepth || (leaf != nil && leaf(v)) {
		return Leaf(v)
	}
	in := fn.Instr(v.InstrID())
	sub := func(i int) Affine { return expand(fn, in.Args[i], leaf, depth+1) }
	switch in.Op {
	case ir.OpAdd:
		return sub(0).Add(sub(1))
	case ir.OpSub:
		return sub(0).Sub(sub(1))
	case ir.OpNeg:
		return sub(0).Scale(-1)
	case ir.OpMul:
		x, y := sub(0), sub(1)
		switch {
		case y.IsConst():
			return x.Scale(y.Const)
		case x.IsConst():
			return y.Scale(x.Const)
		}
	case ir.OpShl:
		if k := in.Args[1]; k.IsConst() && k.Const >= 0 && k.Const < 63 {
			return sub(0).Scale(1 << uint(k.Const))
		}
	}
	return Leaf(v)
}

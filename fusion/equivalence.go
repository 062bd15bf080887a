package fusion

import (
	"fmt"

	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
)

// tripCountMismatch returns why a and b may iterate a different number of
// times, or "" if their symbolic trip counts are equal.
func tripCountMismatch(an Analyses, a, b *loop.Loop) string {
	fn := a.Func()
	ta, ok := an.TripCount(a)
	if !ok {
		return fmt.Sprintf("unknown trip count for %s", fn.BlockName(a.Header()))
	}
	tb, ok := an.TripCount(b)
	if !ok {
		return fmt.Sprintf("unknown trip count for %s", fn.BlockName(b.Header()))
	}
	if !ta.Equal(tb) {
		return fmt.Sprintf("trip counts differ: %s vs %s", ta, tb)
	}
	return ""
}

// ControlFlowEquivalent reports whether b runs whenever a runs and the other
// way round: the entry of a dominates the entry of b, which post-dominates
// the entry of a.
func ControlFlowEquivalent(an Analyses, a, b *loop.Loop) bool {
	ea, eb := Entry(a), Entry(b)
	return an.Dominates(ea, eb) && an.PostDominates(eb, ea)
}

// controlFlowMismatch returns why a and b may not run under the same
// conditions, or "" if they do. Beyond the entry blocks, a guarded loop can
// only be fused with a loop guarded by the same condition.
func controlFlowMismatch(an Analyses, a, b *loop.Loop) string {
	if !ControlFlowEquivalent(an, a, b) {
		fn := a.Func()
		return fmt.Sprintf("%s and %s are not control flow equivalent",
			fn.BlockName(Entry(a)), fn.BlockName(Entry(b)))
	}
	ga, gb := Guard(a), Guard(b)
	switch {
	case ga == ir.NoBlock && gb == ir.NoBlock:
		return ""
	case ga == ir.NoBlock || gb == ir.NoBlock:
		return "only one loop is guarded"
	}
	fn := a.Func()
	ta, tb := fn.Terminator(ga), fn.Terminator(gb)
	if (ta.Succs[0] == a.Preheader()) != (tb.Succs[0] == b.Preheader()) {
		return "guards branch on opposite outcomes"
	}
	if !sameCondition(fn, ta.Args[0], tb.Args[0]) {
		return fmt.Sprintf("guards test %s and %s", ta.Args[0], tb.Args[0])
	}
	return ""
}

// sameCondition reports whether x and y always hold the same truth value:
// they are the same value, or the same comparison of the same operands.
func sameCondition(fn *ir.Func, x, y ir.Value) bool {
	if x == y {
		return true
	}
	if !x.IsInst() || !y.IsInst() {
		return false
	}
	cx, cy := fn.Instr(x.InstrID()), fn.Instr(y.InstrID())
	return cx.Op == ir.OpCmp && cy.Op == ir.OpCmp && cx.Pred == cy.Pred &&
		cx.Args[0] == cy.Args[0] && cx.Args[1] == cy.Args[1]
}

package fusion

import (
	"fmt"

	"github.com/nickng/loopopt/depend"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
)

// unsafeDependence returns the first dependence from an instruction of a to
// an instruction of b that fusion would break, or "" if there is none. Anti
// and confused dependences are unsafe; forward ones keep their order in the
// fused body.
func unsafeDependence(an Analyses, a, b *loop.Loop) string {
	fn := a.Func()
	for _, i := range a.Instrs() {
		for _, j := range b.Instrs() {
			r := an.Depends(i, j, true)
			if r.Kind == depend.Anti || r.Kind == depend.Confused {
				p := ir.NewPrinter()
				return fmt.Sprintf("%s dependence from %q to %q", r, p.FormatInstr(fn, i), p.FormatInstr(fn, j))
			}
		}
	}
	return ""
}

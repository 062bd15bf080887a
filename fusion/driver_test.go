package fusion_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/nickng/loopopt/fusion"
	"github.com/nickng/loopopt/internal/irtest"
	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/interp"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
	"github.com/nickng/loopopt/scev"
	"github.com/nickng/loopopt/verify"
)

func TestRunEndToEnd(t *testing.T) {
	build := func() (*ir.Func, []irtest.Blocks) { return pair(ir.Const(100), readA(0)) }
	orig, _ := build()
	fn, built := build()
	require.Len(t, analyze(fn).Loops(), 2)

	pass := fusion.New(distinctArgs)
	assert.True(t, pass.Run(fn))
	assert.Equal(t, 1, pass.Fusions())
	assert.Empty(t, pass.Diagnostics())

	ls := candidates(t, analyze(fn), 1)
	assert.Equal(t, []ir.BlockID{built[0].Header, built[0].Body, built[1].Body, built[0].Latch}, ls[0].Blocks())
	assert.Equal(t, execute(t, orig, 0), execute(t, fn, 0))
}

func TestRunRejectsNegativeDistance(t *testing.T) {
	fn, _ := pair(ir.Const(100), readA(-1))
	before := fn.String()
	pass := fusion.New(distinctArgs)
	assert.False(t, pass.Run(fn))
	assert.Zero(t, pass.Fusions())
	assert.Equal(t, before, fn.String())
}

func TestRunIdempotent(t *testing.T) {
	fn, _ := pair(ir.Arg(2), readA(0))
	require.True(t, fusion.Run(fn, distinctArgs))
	after := fn.String()
	assert.False(t, fusion.Run(fn, distinctArgs))
	assert.Equal(t, after, fn.String())
}

func chain(n int) (*ir.Func, []irtest.Blocks) {
	var loops []irtest.Loop
	for i := 0; i < n; i++ {
		dst := ir.Arg(i % 2)
		loops = append(loops, irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(2), Body: func(b *ir.Builder, iv ir.Value) {
			irtest.StoreAt(b, dst, iv, 0, b.Add(irtest.LoadAt(b, dst, iv, 0), iv))
		}})
	}
	return irtest.Seq("chain", []string{"a", "b", "n"}, loops...)
}

func TestRunFusesChain(t *testing.T) {
	orig, _ := chain(4)
	fn, _ := chain(4)
	pass := fusion.New(distinctArgs)
	assert.True(t, pass.Run(fn))
	assert.Equal(t, 3, pass.Fusions())
	candidates(t, analyze(fn), 1)
	assert.Equal(t, execute(t, orig, 9), execute(t, fn, 9))
}

func TestRunMaxFusions(t *testing.T) {
	fn, _ := chain(3)
	pass := fusion.New(distinctArgs, fusion.WithMaxFusions(1))
	assert.True(t, pass.Run(fn))
	assert.Equal(t, 1, pass.Fusions())
	candidates(t, analyze(fn), 2)
}

func TestRunTracesDecisions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fn, _ := irtest.Seq("trace", []string{"a", "b", "n"},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Const(10), Body: fillA},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Const(20), Body: readA(0)},
	)
	pass := fusion.New(distinctArgs, fusion.WithLogger(logging.FromCore(core)))
	assert.False(t, pass.Run(fn))
	assert.Equal(t, 1, logs.FilterMessageSnippet("trip counts differ").Len(), spew.Sdump(logs.AllUntimed()))
}

// fixedTrips claims every loop runs four times.
type fixedTrips struct{}

type fixedTripsAnalyses struct{ fusion.Analyses }

func (fixedTrips) Analyze(fn *ir.Func) fusion.Analyses {
	return fixedTripsAnalyses{distinctArgs.Analyze(fn)}
}

func (fixedTripsAnalyses) TripCount(*loop.Loop) (scev.Expr, bool) {
	return scev.Expr{Num: scev.Constant(4), Div: 1}, true
}

func TestRunReportsAnomaly(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fn, built := irtest.Seq("anomaly", []string{"a", "n"},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1), Body: fillA},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1)},
	)
	upd := fn.Instr(fn.Instr(built[1].IV.InstrID()).Args[1].InstrID())
	upd.Args[1] = ir.Arg(1)

	pass := fusion.New(fixedTrips{}, fusion.WithLogger(logging.FromCore(core)))
	assert.False(t, pass.Run(fn))
	diags := pass.Diagnostics()
	require.Len(t, diags, 1, spew.Sdump(diags))
	assert.Equal(t, fusion.Anomaly, diags[0].Kind)
	assert.True(t, errors.Is(diags[0].Err, fusion.ErrMissingIV))
	assert.Equal(t, 1, logs.Len())
}

func TestRunReportsVerifyFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	b := ir.NewBuilder("bad", "x")
	entry, l, r := b.Block("entry"), b.Block("left"), b.Block("right")
	b.SetBlock(entry)
	b.CondBr(ir.Arg(0), l, r)
	b.SetBlock(l)
	v := b.Add(ir.Arg(0), ir.Const(1))
	b.Br(r)
	b.SetBlock(r)
	b.Ret(v)

	pass := fusion.New(distinctArgs, fusion.WithLogger(logging.FromCore(core)))
	assert.False(t, pass.Run(b.Func()))
	diags := pass.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, fusion.VerifyFailed, diags[0].Kind)
	assert.True(t, errors.Is(diags[0].Err, verify.ErrMalformed))
	assert.Equal(t, 1, logs.Len())
}

// randomBody stores into array dst, at iv+dstOff, either iv or the element
// of array src at iv+srcOff plus one.
func randomBody(dst, src int, dstOff, srcOff int64) func(*ir.Builder, ir.Value) {
	return func(b *ir.Builder, iv ir.Value) {
		v := iv
		if src >= 0 {
			v = b.Add(irtest.LoadAt(b, ir.Arg(src), iv, srcOff), ir.Const(1))
		}
		irtest.StoreAt(b, ir.Arg(dst), iv, dstOff, v)
	}
}

func TestFusionPreservesSemantics(t *testing.T) {
	bounds := []ir.Value{ir.Const(4), ir.Const(5), ir.Arg(3)}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "loops")
		var loops []irtest.Loop
		for i := 0; i < n; i++ {
			loops = append(loops, irtest.Loop{
				Init:  ir.Const(0),
				Bound: bounds[rapid.IntRange(0, len(bounds)-1).Draw(t, "bound")],
				Body: randomBody(
					rapid.IntRange(0, 2).Draw(t, "dst"),
					rapid.IntRange(-1, 2).Draw(t, "src"),
					int64(rapid.IntRange(0, 2).Draw(t, "dstOff")),
					int64(rapid.IntRange(0, 2).Draw(t, "srcOff")),
				),
			})
		}
		build := func() *ir.Func {
			fn, _ := irtest.Seq("random", []string{"a", "b", "c", "n"}, loops...)
			return fn
		}
		want := execute(t, build(), 5)

		fn := build()
		pass := fusion.New(distinctArgs)
		pass.Run(fn)
		require.Empty(t, pass.Diagnostics(), spew.Sdump(pass.Diagnostics()))
		require.LessOrEqual(t, pass.Fusions(), n-1)
		require.Equal(t, want, execute(t, fn, 5), "after %d fusions:\n%s", pass.Fusions(), fn)
		require.False(t, pass.Run(fn), "a second run changes nothing")
	})
}

// overlapping runs fn with b starting one element after a.
func overlapping(t *testing.T, fn *ir.Func, n int64) []int64 {
	mem := interp.NewMemory()
	a := mem.Alloc(8)
	_, err := interp.Run(fn, mem, []int64{a, a + 1, n})
	require.NoError(t, err)
	return mem.Snapshot()[0]
}

func TestRunKeepsOverlappingArgumentsApart(t *testing.T) {
	orig, _ := pair(ir.Arg(2), readA(0))
	fn, _ := pair(ir.Arg(2), readA(0))

	pass := fusion.New(fusion.DefaultProvider{})
	assert.False(t, pass.Run(fn), "a and b may be slices of one array")
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 0}, overlapping(t, orig, 6))
	assert.Equal(t, overlapping(t, orig, 6), overlapping(t, fn, 6))

	assert.True(t, fusion.Run(fn, distinctArgs))
}

package licm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nickng/loopopt/internal/irtest"
	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/interp"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/licm"
	"github.com/nickng/loopopt/verify"
)

// execute runs fn with a fresh array for every argument before the given
// scalars and returns the arrays followed by the returned values.
func execute(t *testing.T, fn *ir.Func, scalars ...int64) [][]int64 {
	mem := interp.NewMemory()
	var args []int64
	for i := 0; i < fn.NumArgs()-len(scalars); i++ {
		args = append(args, mem.Alloc(64))
	}
	args = append(args, scalars...)
	res, err := interp.Run(fn, mem, args)
	require.NoError(t, err)
	return append(mem.Snapshot(), res.Ret)
}

func block(fn *ir.Func, v ir.Value) ir.BlockID { return fn.Instr(v.InstrID()).Block }

func TestHoistsInvariantChain(t *testing.T) {
	var scaled, biased, offset ir.Value
	build := func() (*ir.Func, irtest.Blocks) {
		fn, built := irtest.Seq("chain", []string{"a", "n"},
			irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1), Body: func(b *ir.Builder, iv ir.Value) {
				scaled = b.Mul(ir.Arg(1), ir.Const(3))
				biased = b.Add(scaled, ir.Const(1))
				offset = b.Add(biased, iv)
				irtest.StoreAt(b, ir.Arg(0), iv, 0, offset)
			}},
		)
		return fn, built[0]
	}
	orig, _ := build()
	fn, l := build()

	p := licm.New()
	assert.True(t, p.Run(fn))
	assert.Equal(t, 2, p.Hoisted())
	require.NoError(t, verify.Func(fn))
	assert.Equal(t, l.Preheader, block(fn, scaled))
	assert.Equal(t, l.Preheader, block(fn, biased))
	assert.Equal(t, l.Body, block(fn, offset), "depends on the induction variable")
	assert.Equal(t, ir.OpBr, fn.Terminator(l.Preheader).Op, "hoisted before the terminator")
	for _, n := range []int64{0, 1, 9} {
		assert.Equal(t, execute(t, orig, n), execute(t, fn, n), "n = %d", n)
	}
	assert.False(t, p.Run(fn), "a second run finds nothing")
}

func TestHoistsFromHeader(t *testing.T) {
	// for i := 0; i < n-1; i++ with n-1 computed in the header.
	build := func() (*ir.Func, irtest.Blocks, ir.InstrID) {
		fn, built := irtest.Seq("bound", []string{"a", "n"},
			irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1), Body: func(b *ir.Builder, iv ir.Value) {
				irtest.StoreAt(b, ir.Arg(0), iv, 0, iv)
			}},
		)
		l := built[0]
		bound := fn.NewInstr(ir.OpSub, ir.Arg(1), ir.Const(1))
		fn.InsertAtStart(l.Header, bound.ID)
		fn.Instr(fn.Terminator(l.Header).Args[0].InstrID()).Args[1] = bound.Value()
		return fn, l, bound.ID
	}
	orig, _, _ := build()
	fn, l, bound := build()
	require.NoError(t, verify.Func(fn))

	assert.True(t, licm.Run(fn))
	assert.Equal(t, l.Preheader, fn.Instr(bound).Block)
	assert.Equal(t, execute(t, orig, 7), execute(t, fn, 7))
}

func TestKeepsUnsafeInstructions(t *testing.T) {
	var load, div, half ir.Value
	fn, built := irtest.Seq("unsafe", []string{"a", "n", "d"},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1), Body: func(b *ir.Builder, iv ir.Value) {
			load = b.Load(ir.Arg(0))
			div = b.SDiv(ir.Arg(1), ir.Arg(2))
			half = b.SDiv(ir.Arg(1), ir.Const(2))
			irtest.StoreAt(b, ir.Arg(0), iv, 1, b.Add(b.Add(load, div), half))
		}},
	)
	l := built[0]
	assert.True(t, licm.Run(fn))
	assert.Equal(t, l.Body, block(fn, load), "memory is written in the loop")
	assert.Equal(t, l.Body, block(fn, div), "the divisor may be zero")
	assert.Equal(t, l.Preheader, block(fn, half))
}

// earlyExit builds
//
//	for i := 0; i < n; i++ {
//		k := n*2
//		m := n*5
//		a[i] = m
//		if i == 3 { return k }
//	}
//	return 0
func earlyExit() (fn *ir.Func, k, m ir.Value, body, entry ir.BlockID) {
	b := ir.NewBuilder("early", "a", "n")
	entry = b.Block("entry")
	hdr, body, latch := b.Block("loop"), b.Block("body"), b.Block("post")
	brk, done := b.Block("break"), b.Block("done")
	b.SetBlock(entry)
	b.Br(hdr)
	b.SetBlock(hdr)
	i := b.Phi(ir.PhiEdge{Value: ir.Const(0), From: entry})
	b.CondBr(b.Cmp(ir.LT, i, ir.Arg(1)), body, done)
	b.SetBlock(body)
	k = b.Mul(ir.Arg(1), ir.Const(2))
	m = b.Mul(ir.Arg(1), ir.Const(5))
	b.Store(b.IndexAddr(ir.Arg(0), i), m)
	b.CondBr(b.Cmp(ir.EQ, i, ir.Const(3)), brk, latch)
	b.SetBlock(latch)
	b.AddIncoming(i, b.Add(i, ir.Const(1)), latch)
	b.Br(hdr)
	b.SetBlock(brk)
	b.Ret(k)
	b.SetBlock(done)
	b.Ret(ir.Const(0))
	return b.Func(), k, m, body, entry
}

func TestKeepsValuesUsedAfterConditionalExit(t *testing.T) {
	orig, _, _, _, _ := earlyExit()
	fn, k, m, body, entry := earlyExit()
	core, logs := observer.New(zapcore.DebugLevel)

	p := licm.New(licm.WithLogger(logging.FromCore(core)))
	assert.True(t, p.Run(fn))
	assert.Equal(t, 1, p.Hoisted())
	assert.Equal(t, body, block(fn, k))
	assert.Equal(t, entry, block(fn, m))
	assert.Equal(t, 1, logs.FilterMessageSnippet("used after a conditional exit").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("hoisted").Len())
	for _, n := range []int64{2, 10} {
		assert.Equal(t, execute(t, orig, n), execute(t, fn, n), "n = %d", n)
	}
}

func TestHoistsOutOfNest(t *testing.T) {
	var scaled, shifted ir.Value
	build := func() (*ir.Func, irtest.Blocks) {
		fn, built := irtest.Seq("nest", []string{"a", "n"},
			irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1), Body: func(b *ir.Builder, i ir.Value) {
				inner := irtest.Emit(b, b.Current(), irtest.Loop{Name: "inner", Init: ir.Const(0), Bound: ir.Arg(1),
					Body: func(b *ir.Builder, j ir.Value) {
						scaled = b.Mul(ir.Arg(1), ir.Const(4))
						shifted = b.Add(scaled, i)
						irtest.StoreAt(b, ir.Arg(0), j, 0, shifted)
					}}, 1)
				b.SetBlock(inner.Done)
			}},
		)
		return fn, built[0]
	}
	orig, _ := build()
	fn, outer := build()
	require.NoError(t, verify.Func(orig))

	p := licm.New()
	assert.True(t, p.Run(fn))
	require.NoError(t, verify.Func(fn))
	assert.Equal(t, outer.Preheader, block(fn, scaled))
	assert.Equal(t, outer.Body, block(fn, shifted), "invariant in the inner loop only")
	assert.Equal(t, 3, p.Hoisted())
	assert.Equal(t, execute(t, orig, 5), execute(t, fn, 5))
}

func TestSkipsLoopWithoutPreheader(t *testing.T) {
	b := ir.NewBuilder("nopre", "n", "c")
	entry, hdr, body, done := b.Block("entry"), b.Block("loop"), b.Block("body"), b.Block("done")
	b.SetBlock(entry)
	b.CondBr(ir.Arg(1), hdr, done)
	b.SetBlock(hdr)
	i := b.Phi(ir.PhiEdge{Value: ir.Const(0), From: entry})
	b.CondBr(b.Cmp(ir.LT, i, ir.Arg(0)), body, done)
	b.SetBlock(body)
	k := b.Mul(ir.Arg(0), ir.Const(3))
	b.AddIncoming(i, b.Add(i, k), body)
	b.Br(hdr)
	b.SetBlock(done)
	b.Ret()
	fn := b.Func()

	assert.False(t, licm.Run(fn))
	assert.Equal(t, body, block(fn, k))
}

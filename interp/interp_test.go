package interp_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickng/loopopt/internal/irtest"
	"github.com/nickng/loopopt/interp"
	"github.com/nickng/loopopt/ir"
)

func TestRunLoops(t *testing.T) {
	// a[i] = i*3; b[i] = a[i] + 1
	fn, _ := irtest.Seq("fill", []string{"a", "b", "n"},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(2), Body: func(b *ir.Builder, iv ir.Value) {
			irtest.StoreAt(b, ir.Arg(0), iv, 0, b.Mul(iv, ir.Const(3)))
		}},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(2), Body: func(b *ir.Builder, iv ir.Value) {
			irtest.StoreAt(b, ir.Arg(1), iv, 0, b.Add(irtest.LoadAt(b, ir.Arg(0), iv, 0), ir.Const(1)))
		}},
	)
	mem := interp.NewMemory()
	a, b := mem.Alloc(4), mem.Alloc(4)
	res, err := interp.Run(fn, mem, []int64{a, b, 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 6, 9}, mem.Array(a))
	assert.Equal(t, []int64{1, 4, 7, 10}, mem.Array(b))
	assert.Greater(t, res.Steps, 0)
}

func TestParallelPhis(t *testing.T) {
	// Swaps x and y n times and returns both.
	bld := ir.NewBuilder("swap", "n")
	entry, hdr, body, done := bld.Block("entry"), bld.Block("loop"), bld.Block("body"), bld.Block("done")
	bld.SetBlock(entry)
	bld.Br(hdr)
	bld.SetBlock(hdr)
	i := bld.Phi(ir.PhiEdge{Value: ir.Const(0), From: entry})
	x := bld.Phi(ir.PhiEdge{Value: ir.Const(1), From: entry})
	y := bld.Phi(ir.PhiEdge{Value: ir.Const(2), From: entry})
	bld.CondBr(bld.Cmp(ir.LT, i, ir.Arg(0)), body, done)
	bld.SetBlock(body)
	bld.AddIncoming(i, bld.Add(i, ir.Const(1)), body)
	bld.AddIncoming(x, y, body)
	bld.AddIncoming(y, x, body)
	bld.Br(hdr)
	bld.SetBlock(done)
	bld.Ret(x, y)

	res, err := interp.Run(bld.Func(), interp.NewMemory(), []int64{3})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, res.Ret)
}

func TestArithmetic(t *testing.T) {
	bld := ir.NewBuilder("arith", "x")
	bld.SetBlock(bld.Block("entry"))
	x := ir.Arg(0)
	bld.Ret(
		bld.SDiv(x, ir.Const(-4)),
		bld.UDiv(x, ir.Const(4)),
		bld.Binary(ir.OpSRem, x, ir.Const(3)),
		bld.Binary(ir.OpShl, x, ir.Const(2)),
		bld.Binary(ir.OpAShr, x, ir.Const(1)),
		bld.Binary(ir.OpLShr, ir.Const(-1), ir.Const(60)),
		bld.Neg(x),
		bld.Cmp(ir.GE, x, ir.Const(-10)),
	)
	res, err := interp.Run(bld.Func(), interp.NewMemory(), []int64{-10})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, int64(uint64(1<<64-10) / 4), -1, -40, -5, 15, 10, 1}, res.Ret)
}

func TestCallsAreRecorded(t *testing.T) {
	bld := ir.NewBuilder("calls", "x")
	bld.SetBlock(bld.Block("entry"))
	r := bld.Call("f", ir.Arg(0), ir.Const(2))
	bld.Call("g", r)
	bld.Ret()
	res, err := interp.Run(bld.Func(), interp.NewMemory(), []int64{7})
	require.NoError(t, err)
	assert.Equal(t, []interp.Call{{Callee: "f", Args: []int64{7, 2}}, {Callee: "g", Args: []int64{0}}}, res.Calls)
}

func TestErrors(t *testing.T) {
	spin := ir.NewBuilder("spin")
	entry, l := spin.Block("entry"), spin.Block("loop")
	spin.SetBlock(entry)
	spin.Br(l)
	spin.SetBlock(l)
	spin.Br(l)
	_, err := interp.Run(spin.Func(), interp.NewMemory(), nil, interp.WithStepLimit(100))
	assert.True(t, errors.Is(err, interp.ErrStepLimit))

	div := ir.NewBuilder("div", "x")
	div.SetBlock(div.Block("entry"))
	div.Ret(div.SDiv(ir.Const(1), ir.Arg(0)))
	_, err = interp.Run(div.Func(), interp.NewMemory(), []int64{0})
	assert.True(t, errors.Is(err, interp.ErrDivByZero))

	_, err = interp.Run(div.Func(), interp.NewMemory(), nil)
	assert.True(t, errors.Is(err, interp.ErrArgMismatch))

	oob := ir.NewBuilder("oob", "a")
	oob.SetBlock(oob.Block("entry"))
	oob.Store(oob.IndexAddr(ir.Arg(0), ir.Const(2)), ir.Const(1))
	oob.Ret()
	mem := interp.NewMemory()
	_, err = interp.Run(oob.Func(), mem, []int64{mem.Alloc(2)})
	assert.True(t, errors.Is(err, interp.ErrBadAddress))
}

func TestMemoryClone(t *testing.T) {
	mem := interp.NewMemory()
	p := mem.AllocWith(1, 2, 3)
	c := mem.Clone()
	require.NoError(t, c.Store(p+1, 9))
	assert.Equal(t, []int64{1, 2, 3}, mem.Array(p))
	assert.Equal(t, []int64{1, 9, 3}, c.Array(p))
	assert.Equal(t, [][]int64{{1, 2, 3}}, mem.Snapshot())
	v, err := c.Load(p + 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)
}

package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/internal/irtest"
	"github.com/nickng/loopopt/ir"
)

func TestDominatorsOfLoopSequence(t *testing.T) {
	fn, loops := irtest.Seq("two", []string{"a", "n"},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1)},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(1)},
	)
	a, b := loops[0], loops[1]
	dt := dom.New(fn)

	assert.Equal(t, fn.Entry(), dt.Root())
	assert.True(t, dt.Dominates(a.Preheader, b.Preheader))
	assert.True(t, dt.Dominates(a.Header, a.Latch))
	assert.True(t, dt.Dominates(a.Header, b.Header))
	assert.False(t, dt.Dominates(a.Body, b.Preheader))
	assert.False(t, dt.Dominates(b.Header, a.Header))
	assert.True(t, dt.StrictlyDominates(a.Header, a.Body))
	assert.False(t, dt.StrictlyDominates(a.Body, a.Body))
	assert.Equal(t, a.Header, dt.Idom(a.Body))
	assert.Equal(t, ir.NoBlock, dt.Idom(fn.Entry()))
	assert.Equal(t, []ir.BlockID{a.Body, a.Exit}, dt.Children(a.Header))

	pdt := dom.NewPost(fn)
	assert.True(t, pdt.Dominates(b.Preheader, a.Preheader))
	assert.True(t, pdt.Dominates(b.Exit, a.Header))
	assert.False(t, pdt.Dominates(a.Body, a.Header))
	assert.True(t, pdt.Dominates(a.Header, a.Latch))
}

func TestPostDominanceAcrossBranch(t *testing.T) {
	b := ir.NewBuilder("branch", "x")
	entry, then, join := b.Block("entry"), b.Block("then"), b.Block("join")
	b.SetBlock(entry)
	b.CondBr(b.Cmp(ir.GT, ir.Arg(0), ir.Const(0)), then, join)
	b.SetBlock(then)
	b.Br(join)
	b.SetBlock(join)
	b.Ret()
	fn := b.Func()

	dt, pdt := dom.New(fn), dom.NewPost(fn)
	assert.True(t, dt.Dominates(entry, then))
	assert.False(t, pdt.Dominates(then, entry), "then is conditional")
	assert.True(t, pdt.Dominates(join, entry))
	assert.True(t, pdt.Dominates(join, then))
	assert.Equal(t, join, pdt.Idom(entry))
	assert.Equal(t, ir.NoBlock, pdt.Idom(join))
}

func TestUnreachableBlocks(t *testing.T) {
	b := ir.NewBuilder("dead")
	entry, dead := b.Block("entry"), b.Block("dead")
	b.SetBlock(entry)
	b.Ret()
	b.SetBlock(dead)
	b.Br(entry)
	fn := b.Func()

	dt := dom.New(fn)
	assert.False(t, dt.IsReachable(dead))
	assert.True(t, dt.Dominates(entry, dead), "unreachable blocks are dominated by everything")
	assert.False(t, dt.Dominates(dead, entry))
}

func TestInstrDominates(t *testing.T) {
	fn, loops := irtest.Seq("one", []string{"a", "n"}, irtest.Loop{
		Init:  ir.Const(0),
		Bound: ir.Arg(1),
		Body: func(b *ir.Builder, iv ir.Value) {
			irtest.StoreAt(b, ir.Arg(0), iv, 0, iv)
		},
	})
	l := loops[0]
	dt := dom.New(fn)
	body := fn.Block(l.Body).Instrs
	addr, store := body[0], body[1]

	assert.True(t, dom.InstrDominates(fn, dt, addr, store))
	assert.False(t, dom.InstrDominates(fn, dt, store, addr))
	assert.True(t, dom.InstrDominates(fn, dt, l.IV.InstrID(), store))
	assert.False(t, dom.InstrDominates(fn, dt, store, l.IV.InstrID()))
}

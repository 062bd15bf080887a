// Package irtest builds canonical loop nests for tests.
package irtest

import (
	"strconv"

	"github.com/nickng/loopopt/ir"
)

// Loop describes one counted loop
//
//	for iv := Init; iv <Pred> Bound; iv += Step { Body }
//
// in the shape produced by a front end before rotation: a header holding the
// induction phi and the exit test, a body, and a latch holding the update.
type Loop struct {
	Name  string
	Init  ir.Value
	Bound ir.Value
	Pred  ir.Pred // Defaults to ir.LT.
	Step  int64   // Defaults to 1.
	Body  func(b *ir.Builder, iv ir.Value)

	// Guard, when valid, wraps the loop in `if Guard { ... }`.
	Guard ir.Value
}

// Blocks are the structural blocks of a built Loop.
type Blocks struct {
	Guard     ir.BlockID // NoBlock unless guarded.
	Preheader ir.BlockID
	Header    ir.BlockID
	Body      ir.BlockID
	Latch     ir.BlockID
	Exit      ir.BlockID // Dedicated exit block of the loop.
	Done      ir.BlockID // Join after the loop; Exit unless guarded.
	IV        ir.Value
}

// Entry returns the block control enters the loop construct through.
func (l Blocks) Entry() ir.BlockID {
	if l.Guard != ir.NoBlock {
		return l.Guard
	}
	return l.Preheader
}

// Seq builds a function running loops one after another. Each loop's Done
// block is the next loop's entry; the last one returns.
func Seq(name string, args []string, loops ...Loop) (*ir.Func, []Blocks) {
	b := ir.NewBuilder(name, args...)
	entry := b.Block("entry")
	b.SetBlock(entry)
	var built []Blocks
	cur := entry
	for i, l := range loops {
		lb := Emit(b, cur, l, i)
		built = append(built, lb)
		cur = lb.Done
	}
	b.SetBlock(cur)
	b.Ret()
	return b.Func(), built
}

// Emit appends loop l to the builder, entering it from block from (which
// must not be terminated yet). It returns the loop's blocks; the Done block
// is left unterminated.
func Emit(b *ir.Builder, from ir.BlockID, l Loop, n int) Blocks {
	if l.Step == 0 {
		l.Step = 1
	}
	prefix := l.Name
	if prefix == "" {
		prefix = "for" + strconv.Itoa(n)
	}
	lb := Blocks{Guard: ir.NoBlock, Preheader: from}
	if l.Guard.IsValid() {
		lb.Guard = from
		lb.Preheader = b.Block(prefix + ".ph")
	}
	lb.Header = b.Block(prefix + ".loop")
	lb.Body = b.Block(prefix + ".body")
	lb.Latch = b.Block(prefix + ".post")
	if lb.Guard != ir.NoBlock {
		lb.Exit = b.Block(prefix + ".exit")
		lb.Done = b.Block(prefix + ".done")
		b.SetBlock(lb.Guard)
		b.CondBr(l.Guard, lb.Preheader, lb.Done)
		b.SetBlock(lb.Exit)
		b.Br(lb.Done)
	} else {
		lb.Exit = b.Block(prefix + ".done")
		lb.Done = lb.Exit
	}
	b.SetBlock(lb.Preheader)
	b.Br(lb.Header)

	b.SetBlock(lb.Header)
	iv := b.Phi(ir.PhiEdge{Value: l.Init, From: lb.Preheader})
	lb.IV = iv
	b.CondBr(b.Cmp(l.Pred, iv, l.Bound), lb.Body, lb.Exit)

	b.SetBlock(lb.Body)
	if l.Body != nil {
		l.Body(b, iv)
	}
	b.Br(lb.Latch)

	b.SetBlock(lb.Latch)
	next := b.Add(iv, ir.Const(l.Step))
	b.AddIncoming(iv, next, lb.Latch)
	b.Br(lb.Header)
	return lb
}

// StoreAt emits base[iv+off] = v.
func StoreAt(b *ir.Builder, base, iv ir.Value, off int64, v ir.Value) {
	b.Store(b.IndexAddr(base, offset(b, iv, off)), v)
}

// LoadAt emits a load of base[iv+off].
func LoadAt(b *ir.Builder, base, iv ir.Value, off int64) ir.Value {
	return b.Load(b.IndexAddr(base, offset(b, iv, off)))
}

func offset(b *ir.Builder, iv ir.Value, off int64) ir.Value {
	switch {
	case off > 0:
		return b.Add(iv, ir.Const(off))
	case off < 0:
		return b.Sub(iv, ir.Const(-off))
	}
	return iv
}

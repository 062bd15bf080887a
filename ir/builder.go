package ir

// Builder constructs a Func one block at a time.
//
//	b := ir.NewBuilder("f", "a", "n")
//	entry, hdr := b.Block("entry"), b.Block("for.loop")
//	b.SetBlock(entry)
//	b.Br(hdr)
type Builder struct {
	fn  *Func
	cur BlockID
}

// NewBuilder returns a Builder for a new function.
func NewBuilder(name string, args ...string) *Builder {
	return &Builder{fn: NewFunc(name, args...), cur: NoBlock}
}

// Func returns the function under construction.
func (b *Builder) Func() *Func { return b.fn }

// Block creates a new block at the end of the layout.
func (b *Builder) Block(name string) BlockID { return b.fn.NewBlock(name) }

// SetBlock makes blk the insertion point.
func (b *Builder) SetBlock(blk BlockID) { b.cur = blk }

// Current returns the insertion point.
func (b *Builder) Current() BlockID { return b.cur }

func (b *Builder) emit(op Op, args ...Value) *Instr {
	in := b.fn.NewInstr(op, args...)
	b.fn.Append(b.cur, in.ID)
	return in
}

// Named sets the source name of the instruction defining v.
func (b *Builder) Named(v Value, name string) Value {
	if id := v.InstrID(); id != NoInstr {
		b.fn.instrs[id].Name = name
	}
	return v
}

// Phi emits a phi with the given (value, block) pairs. More can be added
// later with AddIncoming.
func (b *Builder) Phi(incoming ...PhiEdge) Value {
	in := b.emit(OpPhi)
	for _, e := range incoming {
		in.AddIncoming(e.Value, e.From)
	}
	return in.Value()
}

// PhiEdge is one incoming edge of a phi.
type PhiEdge struct {
	Value Value
	From  BlockID
}

// AddIncoming appends an incoming edge to phi.
func (b *Builder) AddIncoming(phi Value, v Value, from BlockID) {
	b.fn.instrs[phi.InstrID()].AddIncoming(v, from)
}

// Binary emits a two-operand arithmetic instruction.
func (b *Builder) Binary(op Op, x, y Value) Value { return b.emit(op, x, y).Value() }

func (b *Builder) Add(x, y Value) Value  { return b.Binary(OpAdd, x, y) }
func (b *Builder) Sub(x, y Value) Value  { return b.Binary(OpSub, x, y) }
func (b *Builder) Mul(x, y Value) Value  { return b.Binary(OpMul, x, y) }
func (b *Builder) SDiv(x, y Value) Value { return b.Binary(OpSDiv, x, y) }
func (b *Builder) UDiv(x, y Value) Value { return b.Binary(OpUDiv, x, y) }
func (b *Builder) Neg(x Value) Value     { return b.emit(OpNeg, x).Value() }

// Cmp emits a signed comparison.
func (b *Builder) Cmp(p Pred, x, y Value) Value {
	in := b.emit(OpCmp, x, y)
	in.Pred = p
	return in.Value()
}

// Alloc emits a fresh array of n elements.
func (b *Builder) Alloc(n Value) Value { return b.emit(OpAlloc, n).Value() }

// IndexAddr emits the address of base[index].
func (b *Builder) IndexAddr(base, index Value) Value {
	return b.emit(OpIndexAddr, base, index).Value()
}

// Load emits a load from addr.
func (b *Builder) Load(addr Value) Value { return b.emit(OpLoad, addr).Value() }

// Store emits a store of v to addr.
func (b *Builder) Store(addr, v Value) InstrID { return b.emit(OpStore, addr, v).ID }

// Call emits an opaque call.
func (b *Builder) Call(callee string, args ...Value) Value {
	in := b.emit(OpCall, args...)
	in.Callee = callee
	return in.Value()
}

// Br ends the current block with an unconditional branch.
func (b *Builder) Br(to BlockID) InstrID {
	in := b.emit(OpBr)
	in.Succs = []BlockID{to}
	return in.ID
}

// CondBr ends the current block with a conditional branch.
func (b *Builder) CondBr(cond Value, t, f BlockID) InstrID {
	in := b.emit(OpCondBr, cond)
	in.Succs = []BlockID{t, f}
	return in.ID
}

// Ret ends the current block with a return.
func (b *Builder) Ret(v ...Value) InstrID { return b.emit(OpRet, v...).ID }

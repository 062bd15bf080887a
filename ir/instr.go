package ir

// TermKind tags the variant of a block terminator.
type TermKind uint8

const (
	NotTerminator TermKind = iota
	TermBr
	TermCondBr
	TermRet
)

// Instr is a single instruction. Instructions live in the arena of their
// Func and are ordered inside a Block by the block's Instrs list.
type Instr struct {
	ID   InstrID
	Op   Op
	Pred Pred // Comparison predicate (OpCmp).

	Args     []Value   // Operands.
	Incoming []BlockID // Incoming block of each operand (OpPhi only).
	Succs    []BlockID // Successor blocks (terminators only).

	Callee string // Callee name (OpCall).
	Name   string // Optional source name for printing.

	Block  BlockID // Owning block, NoBlock when detached.
	erased bool
}

// TermKind returns the terminator variant of the instruction.
func (in *Instr) TermKind() TermKind {
	switch in.Op {
	case OpBr:
		return TermBr
	case OpCondBr:
		return TermCondBr
	case OpRet:
		return TermRet
	}
	return NotTerminator
}

// IsErased reports whether the instruction has been erased from its Func.
func (in *Instr) IsErased() bool { return in.erased }

// Value returns the instruction result as an operand.
func (in *Instr) Value() Value { return Inst(in.ID) }

// Uses reports whether v appears among the operands.
func (in *Instr) Uses(v Value) bool {
	for _, a := range in.Args {
		if a == v {
			return true
		}
	}
	return false
}

// IncomingFor returns the phi operand flowing in from block b.
func (in *Instr) IncomingFor(b BlockID) (Value, bool) {
	for i, from := range in.Incoming {
		if from == b {
			return in.Args[i], true
		}
	}
	return Value{}, false
}

// SetIncomingBlock replaces incoming block old by new in a phi.
func (in *Instr) SetIncomingBlock(old, new BlockID) bool {
	changed := false
	for i, from := range in.Incoming {
		if from == old {
			in.Incoming[i] = new
			changed = true
		}
	}
	return changed
}

// RemoveIncoming drops every phi operand flowing in from block b.
func (in *Instr) RemoveIncoming(b BlockID) {
	args, inc := in.Args[:0], in.Incoming[:0]
	for i, from := range in.Incoming {
		if from != b {
			args = append(args, in.Args[i])
			inc = append(inc, from)
		}
	}
	in.Args, in.Incoming = args, inc
}

// AddIncoming appends a phi operand flowing in from block b.
func (in *Instr) AddIncoming(v Value, b BlockID) {
	in.Args = append(in.Args, v)
	in.Incoming = append(in.Incoming, b)
}

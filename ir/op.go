package ir

// Op is an instruction opcode.
type Op uint8

const (
	OpInvalid Op = iota
	OpPhi
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpShl
	OpLShr
	OpAShr
	OpNeg
	OpCmp
	OpAlloc     // Args: [length]. Allocates a fresh zeroed array.
	OpIndexAddr // Args: [base, index].
	OpLoad      // Args: [addr].
	OpStore     // Args: [addr, value].
	OpCall      // Args: call arguments. Opaque side effects.
	OpBr        // Succs: [target].
	OpCondBr    // Args: [cond]. Succs: [true, false].
	OpRet       // Args: [] or [value].
)

var opNames = [...]string{
	OpInvalid:   "invalid",
	OpPhi:       "phi",
	OpAdd:       "add",
	OpSub:       "sub",
	OpMul:       "mul",
	OpSDiv:      "sdiv",
	OpUDiv:      "udiv",
	OpSRem:      "srem",
	OpShl:       "shl",
	OpLShr:      "lshr",
	OpAShr:      "ashr",
	OpNeg:       "neg",
	OpCmp:       "cmp",
	OpAlloc:     "alloc",
	OpIndexAddr: "indexaddr",
	OpLoad:      "load",
	OpStore:     "store",
	OpCall:      "call",
	OpBr:        "br",
	OpCondBr:    "condbr",
	OpRet:       "ret",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op?"
}

// IsTerminator reports whether op ends a block.
func (op Op) IsTerminator() bool {
	return op == OpBr || op == OpCondBr || op == OpRet
}

// IsBinary reports whether op is a two-operand arithmetic operator.
func (op Op) IsBinary() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpShl, OpLShr, OpAShr:
		return true
	}
	return false
}

// IsCommutative reports whether the operands of a binary op can be swapped.
func (op Op) IsCommutative() bool {
	return op == OpAdd || op == OpMul
}

// AccessesMemory reports whether op reads or writes memory.
func (op Op) AccessesMemory() bool {
	return op == OpLoad || op == OpStore || op == OpCall
}

// HasSideEffects reports whether removing or moving op can change the
// observable behaviour of the program regardless of its uses.
func (op Op) HasSideEffects() bool {
	return op == OpStore || op == OpCall || op.IsTerminator()
}

// IsPure reports whether op computes its result from its operands alone,
// without touching memory.
func (op Op) IsPure() bool {
	switch op {
	case OpPhi, OpAlloc, OpLoad, OpStore, OpCall, OpInvalid:
		return false
	}
	return !op.IsTerminator()
}

// HasResult reports whether op defines a value.
func (op Op) HasResult() bool {
	switch op {
	case OpStore, OpBr, OpCondBr, OpRet, OpInvalid:
		return false
	}
	return true
}

// Pred is the predicate of a signed integer comparison.
type Pred uint8

const (
	LT Pred = iota
	LE
	GT
	GE
	EQ
	NE
)

var predNames = [...]string{LT: "lt", LE: "le", GT: "gt", GE: "ge", EQ: "eq", NE: "ne"}

func (p Pred) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return "pred?"
}

// Eval applies the predicate to x and y.
func (p Pred) Eval(x, y int64) bool {
	switch p {
	case LT:
		return x < y
	case LE:
		return x <= y
	case GT:
		return x > y
	case GE:
		return x >= y
	case EQ:
		return x == y
	case NE:
		return x != y
	}
	return false
}

// Swap returns the predicate with its operands exchanged (x < y  ==  y > x).
func (p Pred) Swap() Pred {
	switch p {
	case LT:
		return GT
	case LE:
		return GE
	case GT:
		return LT
	case GE:
		return LE
	}
	return p
}

// Negate returns the logical complement of the predicate.
func (p Pred) Negate() Pred {
	switch p {
	case LT:
		return GE
	case LE:
		return GT
	case GT:
		return LE
	case GE:
		return LT
	case EQ:
		return NE
	}
	return EQ
}

package ir

import "fmt"

// BlockID is the arena index of a Block in its Func.
type BlockID int

// InstrID is the arena index of an Instr in its Func.
type InstrID int

const (
	NoBlock BlockID = -1
	NoInstr InstrID = -1
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	InvalidValue ValueKind = iota
	ConstValue
	ArgValue
	InstValue
)

// Value is an operand: an integer constant, a function argument or the
// result of an instruction.
type Value struct {
	Kind  ValueKind
	Const int64 // Constant (ConstValue).
	Index int   // Argument index (ArgValue) or InstrID (InstValue).
}

// Const returns a constant operand.
func Const(c int64) Value { return Value{Kind: ConstValue, Const: c} }

// Arg returns an operand referring to the i-th function argument.
func Arg(i int) Value { return Value{Kind: ArgValue, Index: i} }

// Inst returns an operand referring to the result of instruction id.
func Inst(id InstrID) Value { return Value{Kind: InstValue, Index: int(id)} }

func (v Value) IsConst() bool { return v.Kind == ConstValue }
func (v Value) IsArg() bool   { return v.Kind == ArgValue }
func (v Value) IsInst() bool  { return v.Kind == InstValue }
func (v Value) IsValid() bool { return v.Kind != InvalidValue }

// InstrID returns the defining instruction, or NoInstr if v is not an
// instruction result.
func (v Value) InstrID() InstrID {
	if v.Kind != InstValue {
		return NoInstr
	}
	return InstrID(v.Index)
}

// IsConstValue reports whether v is the constant c.
func (v Value) IsConstValue(c int64) bool { return v.Kind == ConstValue && v.Const == c }

func (v Value) String() string {
	switch v.Kind {
	case ConstValue:
		return fmt.Sprintf("%d", v.Const)
	case ArgValue:
		return fmt.Sprintf("%%a%d", v.Index)
	case InstValue:
		return fmt.Sprintf("%%t%d", v.Index)
	default:
		return "<invalid>"
	}
}

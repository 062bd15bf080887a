package ssa

import (
	"fmt"
	"go/token"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/ssa"
)

var (
	ErrNoFunc   = errors.New("function not found")
	ErrNoBody   = errors.New("function has no body")
	ErrFreeVars = errors.New("closures are not supported")
)

// ErrUnsupported is an instruction outside of the subset Lower handles.
type ErrUnsupported struct {
	Instr ssa.Instruction
	Pos   token.Position
}

func (e ErrUnsupported) Error() string {
	where := "?"
	if e.Pos.IsValid() {
		where = e.Pos.String()
	}
	if v, ok := e.Instr.(ssa.Value); ok {
		return fmt.Sprintf("%s: unsupported %T: %s = %s", where, e.Instr, v.Name(), e.Instr)
	}
	return fmt.Sprintf("%s: unsupported %T: %s", where, e.Instr, e.Instr)
}

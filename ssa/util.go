package ssa

import (
	"go/constant"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// isInteger reports whether t is an integer or boolean type.
func isInteger(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&(types.IsInteger|types.IsBoolean) != 0
}

// isUnsigned reports whether t is an unsigned integer type.
func isUnsigned(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsUnsigned != 0
}

// isAddress reports whether values of t are lowered to array addresses.
func isAddress(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Slice, *types.Pointer:
		return true
	}
	return false
}

// arrayLen returns the length of the array *t points to.
func arrayLen(t types.Type) (int64, bool) {
	ptr, ok := t.Underlying().(*types.Pointer)
	if !ok {
		return 0, false
	}
	arr, ok := ptr.Elem().Underlying().(*types.Array)
	if !ok {
		return 0, false
	}
	return arr.Len(), true
}

// constValue returns the integer value of c. Booleans are 0 or 1 and nil
// is 0.
func constValue(c *ssa.Const) (int64, bool) {
	if c.Value == nil {
		return 0, true
	}
	switch c.Value.Kind() {
	case constant.Bool:
		if constant.BoolVal(c.Value) {
			return 1, true
		}
		return 0, true
	case constant.Int:
		if v, exact := constant.Int64Val(c.Value); exact {
			return v, true
		}
		if v, exact := constant.Uint64Val(c.Value); exact {
			return int64(v), true
		}
	}
	return 0, false
}

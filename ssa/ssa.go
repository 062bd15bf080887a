// Package ssa lowers Go functions, built into SSA form by
// golang.org/x/tools/go/ssa, into the loop IR.
//
// The 'build' subpackage parses and type-checks a single package and builds
// its SSA; Lower then translates one function at a time. Only the integer
// and array subset of Go that the loop passes reason about is supported.
package ssa

import (
	"go/ast"
	"go/token"
	"io"

	"golang.org/x/tools/go/ssa"
)

// Info holds the results of a SSA build.
// To populate this structure, the 'build' subpackage should be used.
type Info struct {
	FSet  *token.FileSet // FileSet for parsed source files.
	Files []*ast.File    // Parsed source files.
	Pkg   *ssa.Package   // SSA IR of the package.

	BldLog io.Writer // Build log.
}

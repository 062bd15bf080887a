// Package build type-checks a single Go package and builds its SSA form for
// the lowering in the parent directory.
//
// Sources come either from files on disk (FromFiles), all of which must
// declare the same package, or from an io.Reader holding one file
// (FromReader), which tests use. Imports are resolved from the export data
// of the installed standard library.
package build

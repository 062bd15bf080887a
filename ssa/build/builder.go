package build

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/nickng/loopopt/ssa"
)

// Builder builds SSA IR and metainfo.
type Builder interface {
	Build() (*ssa.Info, error)
}

// srcParser is a source of Go files that can be parsed.
type srcParser interface {
	parse(fset *token.FileSet) ([]*ast.File, error)
}

// FileSrc is a set of filenames.
type FileSrc struct {
	Files []string
}

// FromFiles returns a non-nil Builder from a slice of filenames.
func FromFiles(files []string) Configurer {
	return newConfig(&FileSrc{Files: files})
}

func (s *FileSrc) parse(fset *token.FileSet) ([]*ast.File, error) {
	if len(s.Files) == 0 {
		return nil, ErrNoFiles
	}
	var files []*ast.File
	for _, name := range s.Files {
		f, err := parser.ParseFile(fset, name, nil, parser.ParseComments)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse file: %s", name)
		}
		files = append(files, f)
	}
	return files, nil
}

// CachedSrc is source file from a reader.
type CachedSrc struct {
	cached []byte
	err    error
}

// FromReader returns a non-nil Builder for a reader.
// This is typically used for testing.
func FromReader(r io.Reader) Configurer {
	b, err := ioutil.ReadAll(r)
	return newConfig(&CachedSrc{cached: b, err: errors.Wrap(err, "failed to read from reader")})
}

func (s *CachedSrc) parse(fset *token.FileSet) ([]*ast.File, error) {
	if s.err != nil {
		return nil, s.err
	}
	f, err := parser.ParseFile(fset, "tmp.go", s.cached, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	return []*ast.File{f}, nil
}

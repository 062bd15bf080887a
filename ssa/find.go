package ssa

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/ssa"
)

// FindFunc parses path (e.g. "main".sum, main.sum or sum) and returns the
// package-level function it names.
func (info *Info) FindFunc(path string) (*ssa.Function, error) {
	pkgPath, fnName := parseFuncPath(path)
	if pkgPath != "" && pkgPath != info.Pkg.Pkg.Path() && pkgPath != info.Pkg.Pkg.Name() {
		return nil, errors.Wrapf(ErrNoFunc, "%s: package is %s", path, info.Pkg.Pkg.Path())
	}
	fn := info.Pkg.Func(fnName)
	if fn == nil {
		return nil, errors.Wrap(ErrNoFunc, path)
	}
	return fn, nil
}

// Funcs returns the package-level functions with a body, in source order.
// Package initializers are left out.
func (info *Info) Funcs() []*ssa.Function {
	var ms members
	for _, m := range info.Pkg.Members {
		fn, ok := m.(*ssa.Function)
		if !ok || fn.Synthetic != "" || len(fn.Blocks) == 0 {
			continue
		}
		ms = append(ms, fn)
	}
	ms.sort()
	funcs := make([]*ssa.Function, len(ms))
	for i, m := range ms {
		funcs[i] = m.(*ssa.Function)
	}
	return funcs
}

// parseFuncPath splits path to package and function segments.
// Does not handle complex functions with receivers.
func parseFuncPath(path string) (pkgPath, fnName string) {
	if len(path) < 1 {
		return "", ""
	}
	switch path[0] {
	case '(':
		regex := regexp.MustCompile(`\((?P<pkg>[^)]+)\)\.(?P<fn>.+)`)
		if sub := regex.FindStringSubmatch(path); len(sub) >= 3 {
			return sub[1], sub[2]
		}
	case '"':
		regex := regexp.MustCompile(`"(?P<pkg>[^"]+)"\.(?P<fn>.+)`)
		if sub := regex.FindStringSubmatch(path); len(sub) >= 3 {
			return sub[1], sub[2]
		}
	default:
		if i := strings.LastIndex(path, "."); i >= 0 {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}

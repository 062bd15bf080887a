package pipeline

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nickng/loopopt/fusion"
	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/licm"
	"github.com/nickng/loopopt/peephole"
)

var ErrUnknownPass = errors.New("unknown pass")

// Context is what the passes of one pipeline run share. A Context belongs
// to a single function.
type Context struct {
	Config *Config
	Log    *logging.Logger

	// Diagnostics collects what the fuse pass reported.
	Diagnostics []fusion.Diagnostic
}

// Pass is a transformation of a function.
type Pass interface {
	Name() string
	// Run transforms fn and reports whether it changed.
	Run(fn *ir.Func, ctx *Context) bool
}

var registry = map[string]Pass{
	"peephole": peepholePass{},
	"licm":     licmPass{},
	"fuse":     fusePass{},
}

// Lookup returns the pass registered as name.
func Lookup(name string) (Pass, error) {
	p, ok := registry[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownPass, name)
	}
	return p, nil
}

// Names returns the registered pass names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type peepholePass struct{}

func (peepholePass) Name() string { return "peephole" }

func (peepholePass) Run(fn *ir.Func, ctx *Context) bool {
	return peephole.New(peephole.WithLogger(ctx.Log)).Run(fn)
}

type licmPass struct{}

func (licmPass) Name() string { return "licm" }

func (licmPass) Run(fn *ir.Func, ctx *Context) bool {
	return licm.New(licm.WithLogger(ctx.Log)).Run(fn)
}

type fusePass struct{}

func (fusePass) Name() string { return "fuse" }

func (fusePass) Run(fn *ir.Func, ctx *Context) bool {
	p := fusion.New(
		fusion.DefaultProvider{ArgsNoAlias: ctx.Config.Fusion.ArgsNoAlias},
		fusion.WithLogger(ctx.Log),
		fusion.WithMaxFusions(ctx.Config.Fusion.MaxFusions),
	)
	changed := p.Run(fn)
	ctx.Diagnostics = append(ctx.Diagnostics, p.Diagnostics()...)
	return changed
}

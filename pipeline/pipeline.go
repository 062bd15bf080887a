// Package pipeline runs a configured sequence of loop passes over
// functions.
package pipeline

import (
	"github.com/pkg/errors"

	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/verify"
)

// Pipeline is an ordered list of passes. It holds no per-function state, so
// one Pipeline may run on different functions concurrently.
type Pipeline struct {
	cfg    *Config
	log    *logging.Logger
	passes []Pass
}

// New returns the pipeline described by cfg. A nil logger discards logs.
func New(cfg *Config, log *logging.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	p := &Pipeline{cfg: cfg, log: log}
	for _, name := range cfg.Passes {
		pass, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		p.passes = append(p.passes, pass)
	}
	return p, nil
}

// Passes returns the names of the passes in order.
func (p *Pipeline) Passes() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name()
	}
	return names
}

// Run runs every pass on fn in order and reports whether fn was changed.
// The function is verified once all passes are done.
func (p *Pipeline) Run(fn *ir.Func) (bool, error) {
	_, changed, err := p.run(fn)
	return changed, err
}

// RunContext is Run returning the context the passes shared.
func (p *Pipeline) RunContext(fn *ir.Func) (*Context, bool, error) {
	return p.run(fn)
}

func (p *Pipeline) run(fn *ir.Func) (*Context, bool, error) {
	ctx := &Context{Config: p.cfg, Log: p.log}
	log := p.log.With("pipeline")
	changed := false
	for _, pass := range p.passes {
		if pass.Run(fn, ctx) {
			log.Tracef("%s: %s changed the function", fn.Name, pass.Name())
			changed = true
		}
	}
	if err := verify.Func(fn); err != nil {
		log.Errorw("Malformed function after pipeline", "func", fn.Name, "error", err)
		return ctx, changed, errors.Wrap(err, fn.Name)
	}
	return ctx, changed, nil
}

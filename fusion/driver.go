package fusion

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
	"github.com/nickng/loopopt/verify"
)

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind uint8

const (
	// Anomaly is a pair that passed every check but could not be merged.
	Anomaly DiagnosticKind = iota
	// VerifyFailed is a malformed function after the pass.
	VerifyFailed
)

func (k DiagnosticKind) String() string {
	switch k {
	case Anomaly:
		return "anomaly"
	case VerifyFailed:
		return "verify failed"
	}
	return fmt.Sprintf("DiagnosticKind(%d)", k)
}

// Diagnostic is something that went wrong during a run. The pass carries on
// regardless.
type Diagnostic struct {
	Kind DiagnosticKind
	Func string
	Err  error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %v", d.Func, d.Kind, d.Err)
}

// state is a state of the driver.
type state uint8

const (
	collect state = iota
	testPairs
	merged
	abandoned
	done
)

// Pass fuses adjacent loops of a function until no pair can be fused.
type Pass struct {
	provider   AnalysisProvider
	log        *logging.Logger
	maxFusions int

	fusions int
	diags   []Diagnostic
}

// Option configures a Pass.
type Option func(*Pass)

// WithLogger sets the logger the pass traces its decisions to.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pass) { p.log = l.With("fuse") }
}

// WithMaxFusions bounds the number of fusions in one run. Zero means no
// bound.
func WithMaxFusions(n int) Option {
	return func(p *Pass) { p.maxFusions = n }
}

// New returns a fusion pass computing its analyses with provider.
func New(provider AnalysisProvider, opts ...Option) *Pass {
	p := &Pass{provider: provider, log: logging.Nop().With("fuse")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run is a shorthand for New(provider).Run(fn).
func Run(fn *ir.Func, provider AnalysisProvider) bool {
	return New(provider).Run(fn)
}

// Fusions returns the number of fusions performed by the last run.
func (p *Pass) Fusions() int { return p.fusions }

// Diagnostics returns what went wrong during the last run.
func (p *Pass) Diagnostics() []Diagnostic { return p.diags }

// Run fuses loops of fn and reports whether fn was changed. Analyses are
// recomputed from scratch after every fusion. Once no pair can be fused,
// unreachable blocks are removed and fn is verified; a verification failure
// is recorded as a diagnostic.
func (p *Pass) Run(fn *ir.Func) bool {
	p.fusions, p.diags = 0, nil
	changed := false
	var (
		an    Analyses
		cands []*loop.Loop
	)
	for st := collect; ; {
		switch st {
		case collect:
			an = p.provider.Analyze(fn)
			cands = p.candidates(fn, an)
			st = testPairs
			if len(cands) < 2 || (p.maxFusions > 0 && p.fusions >= p.maxFusions) {
				st = done
			}
		case testPairs:
			st = p.testPairs(fn, an, cands)
		case merged:
			changed = true
			p.fusions++
			fn.EliminateUnreachable()
			st = collect
		case abandoned:
			changed = true
			st = done
		case done:
			if n := fn.EliminateUnreachable(); n > 0 {
				p.log.Tracef("%s: removed %d unreachable blocks", fn.Name, n)
				changed = true
			}
			if err := verify.Func(fn); err != nil {
				p.diags = append(p.diags, Diagnostic{Kind: VerifyFailed, Func: fn.Name, Err: err})
				p.log.Errorw("Malformed function after loop fusion", "func", fn.Name, "error", err)
			}
			p.log.Tracef("%s: %d fusions", fn.Name, p.fusions)
			return changed
		}
	}
}

// candidates returns the eligible innermost loops in header layout order.
func (p *Pass) candidates(fn *ir.Func, an Analyses) []*loop.Loop {
	var cands []*loop.Loop
	for _, l := range an.Loops() {
		if why := Ineligibility(l); why != "" {
			p.log.Tracef("%s: skip %s: %s", fn.Name, fn.BlockName(l.Header()), why)
			continue
		}
		cands = append(cands, l)
	}
	return cands
}

// testPairs tries every pair of candidates in order and fuses the first
// legal one. It returns merged after a fusion, done when no pair fuses and
// abandoned when a fusion stopped half way, which leaves the analyses stale.
func (p *Pass) testPairs(fn *ir.Func, an Analyses, cands []*loop.Loop) state {
	for i, a := range cands {
		for _, b := range cands[i+1:] {
			ha, hb := fn.BlockName(a.Header()), fn.BlockName(b.Header())
			if err := CanFuse(an, a, b); err != nil {
				p.log.Tracef("%s: %s + %s: %v", fn.Name, ha, hb, err)
				continue
			}
			if err := Fuse(an.Forest(), a, b); err != nil {
				err = errors.Wrapf(err, "%s + %s", ha, hb)
				p.diags = append(p.diags, Diagnostic{Kind: Anomaly, Func: fn.Name, Err: err})
				p.log.Warnw("Loops passed every check but could not be fused", "func", fn.Name, "error", err)
				if errors.Is(err, ErrIncomplete) {
					return abandoned
				}
				continue
			}
			p.log.Tracef("%s: fused %s into %s", fn.Name, hb, ha)
			return merged
		}
	}
	return done
}

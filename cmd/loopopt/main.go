// Command loopopt lowers Go functions to the loop IR, runs the loop
// optimisation pipeline over them and prints the result.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	gossa "golang.org/x/tools/go/ssa"

	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/pipeline"
	"github.com/nickng/loopopt/ssa"
	"github.com/nickng/loopopt/ssa/build"
)

type options struct {
	funcs    []string
	passes   []string
	config   string
	logFiles []string
	debug    bool
	noColor  bool
	noAlias  bool
	jobs     int
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "loopopt [flags] file.go...",
		Short: "Fuse loops and hoist invariant code in Go functions",
		Long: `loopopt lowers the functions of a Go package to a loop IR, runs the
optimisation passes over them and prints the optimised IR.

Available passes: ` + fmt.Sprint(pipeline.Names()),
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.pipelineConfig(cmd)
			if err != nil {
				return err
			}
			return run(cfg, &opts, args, out, errOut)
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

func (opts *options) addFlags(flags *pflag.FlagSet) {
	flags.StringSliceVarP(&opts.funcs, "func", "f", nil, "Optimise only the named functions (default: all)")
	flags.StringSliceVarP(&opts.passes, "passes", "p", nil, "Comma separated passes to run, in order")
	flags.StringVarP(&opts.config, "config", "c", "", "Read the pipeline configuration from a TOML file")
	flags.StringSliceVar(&opts.logFiles, "log", nil, "Also write the log to these files")
	flags.BoolVar(&opts.debug, "debug", false, "Trace the decisions of every pass")
	flags.BoolVar(&opts.noColor, "no-color", false, "Print the IR without colours")
	flags.BoolVar(&opts.noAlias, "args-no-alias", false, "Assume slice and pointer arguments never overlap")
	flags.IntVarP(&opts.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "Number of functions optimised in parallel")
}

// pipelineConfig merges the configuration file with the flags set on the
// command line. Flags win.
func (opts *options) pipelineConfig(cmd *cobra.Command) (*pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(opts.config); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("passes") {
		cfg.Passes = opts.passes
	}
	if flags.Changed("args-no-alias") {
		cfg.Fusion.ArgsNoAlias = opts.noAlias
	}
	if flags.Changed("debug") {
		cfg.Log.Debug = opts.debug
	}
	cfg.Log.Files = append(cfg.Log.Files, opts.logFiles...)
	if opts.jobs < 1 {
		return nil, fmt.Errorf("--jobs must be positive, got %d", opts.jobs)
	}
	return cfg, cfg.Validate()
}

// result is the outcome of optimising one function.
type result struct {
	fn      *ir.Func
	changed bool
}

func run(cfg *pipeline.Config, opts *options, files []string, out, errOut io.Writer) error {
	log, err := logging.NewFile(cfg.Log.Debug, cfg.Log.Files...)
	if err != nil {
		return err
	}
	defer log.Sync()

	info, err := build.FromFiles(files).Default().Build()
	if err != nil {
		return err
	}
	srcs, err := selectFuncs(info, opts.funcs)
	if err != nil {
		return err
	}

	lowerLog := log.With("lower")
	var fns []*ir.Func
	for _, src := range srcs {
		fn, err := ssa.Lower(src)
		if err != nil {
			if len(opts.funcs) > 0 {
				return err
			}
			lowerLog.Tracef("skip %s: %v", src.Name(), err)
			fmt.Fprintf(errOut, "skipped %v\n", err)
			continue
		}
		fns = append(fns, fn)
	}

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}
	results := make([]result, len(fns))
	var eg errgroup.Group
	eg.SetLimit(opts.jobs)
	for i, fn := range fns {
		i, fn := i, fn
		eg.Go(func() error {
			ctx, changed, err := p.RunContext(fn)
			for _, d := range ctx.Diagnostics {
				log.Warnw("Fusion diagnostic", "func", d.Func, "kind", d.Kind.String(), "error", d.Err)
			}
			results[i] = result{fn: fn, changed: changed}
			return err
		})
	}
	runErr := eg.Wait()

	printer := ir.NewPrinter()
	if !opts.noColor {
		printer = printer.WithColor()
	}
	var writeErr error
	for _, r := range results {
		if r.fn == nil {
			continue
		}
		if !r.changed {
			fmt.Fprintf(out, "; %s: unchanged\n", r.fn.Name)
		}
		_, err := printer.Fprint(out, r.fn)
		writeErr = multierr.Append(writeErr, err)
	}
	return multierr.Combine(runErr, writeErr)
}

// selectFuncs returns the functions named by paths, or every function of
// the package when paths is empty.
func selectFuncs(info *ssa.Info, paths []string) ([]*gossa.Function, error) {
	if len(paths) == 0 {
		return info.Funcs(), nil
	}
	var (
		fns  []*gossa.Function
		errs error
	)
	for _, path := range paths {
		fn, err := info.FindFunc(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		fns = append(fns, fn)
	}
	return fns, errs
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "loopopt:", err)
		os.Exit(1)
	}
}

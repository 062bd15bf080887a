// Command irview prints the loop IR of Go functions together with what the
// loop analyses make of it.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/fusion"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
	"github.com/nickng/loopopt/scev"
	"github.com/nickng/loopopt/ssa"
	"github.com/nickng/loopopt/ssa/build"
)

type options struct {
	funcs    []string
	buildLog string
	showSSA  bool
	dump     bool
	noColor  bool
}

func newRootCommand(out io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "irview [flags] file.go...",
		Short:         "Print the loop IR of Go functions",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return view(&opts, args, out)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.funcs, "func", "f", nil, "Print only the named functions (format: (import/path).FuncName)")
	flags.StringVar(&opts.buildLog, "log", "", "Write the SSA build log to a file (use '-' for stdout)")
	flags.BoolVar(&opts.showSSA, "ssa", false, "Print the Go SSA form instead of the loop IR")
	flags.BoolVar(&opts.dump, "dump", false, "Dump the internal representation of the loop IR")
	flags.BoolVar(&opts.noColor, "no-color", false, "Print the IR without colours")
	return cmd
}

func view(opts *options, files []string, out io.Writer) error {
	conf := build.FromFiles(files).Default()
	switch opts.buildLog {
	case "":
	case "-":
		conf = conf.WithBuildLog(out, log.LstdFlags)
	default:
		f, err := os.Create(opts.buildLog)
		if err != nil {
			return fmt.Errorf("cannot create log %s: %v", opts.buildLog, err)
		}
		defer f.Close()
		conf = conf.WithBuildLog(f, log.LstdFlags)
	}
	info, err := conf.Build()
	if err != nil {
		return err
	}

	srcs := info.Funcs()
	if len(opts.funcs) > 0 {
		srcs = srcs[:0:0]
		for _, path := range opts.funcs {
			fn, err := info.FindFunc(path)
			if err != nil {
				return err
			}
			srcs = append(srcs, fn)
		}
	}
	if opts.showSSA {
		for _, fn := range srcs {
			if _, err := fn.WriteTo(out); err != nil {
				return err
			}
		}
		return nil
	}

	printer := ir.NewPrinter()
	if !opts.noColor {
		printer = printer.WithColor()
	}
	for _, src := range srcs {
		fn, err := ssa.Lower(src)
		if err != nil {
			fmt.Fprintf(out, "; %v\n\n", err)
			continue
		}
		if _, err := printer.Fprint(out, fn); err != nil {
			return err
		}
		annotate(out, fn)
		if opts.dump {
			ir.Dump(out, fn)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// annotate writes one comment line per loop of fn, outermost first.
func annotate(out io.Writer, fn *ir.Func) {
	forest := loop.Discover(fn, dom.New(fn))
	for _, l := range forest.Loops() {
		fmt.Fprintf(out, "; %s: %s\n", fn.BlockName(l.Header()), l)
		if iv, ok := l.CanonicalIV(); ok {
			fmt.Fprintf(out, ";   induction: %s\n", iv)
		}
		if tc, ok := scev.TripCount(l); ok {
			fmt.Fprintf(out, ";   trip count: %s\n", tc)
		}
		if reason := fusion.Ineligibility(l); reason != "" {
			fmt.Fprintf(out, ";   not fusible: %s\n", reason)
		} else if fusion.IsGuarded(l) {
			fmt.Fprintf(out, ";   guarded by %s\n", fn.BlockName(fusion.Guard(l)))
		}
	}
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "irview:", err)
		os.Exit(1)
	}
}

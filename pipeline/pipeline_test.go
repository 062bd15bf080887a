package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/internal/irtest"
	"github.com/nickng/loopopt/internal/logging"
	"github.com/nickng/loopopt/interp"
	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
	"github.com/nickng/loopopt/pipeline"
)

func TestParseConfig(t *testing.T) {
	cfg, err := pipeline.ParseConfig([]byte(`
passes = ["fuse", "peephole"]

[fusion]
args_no_alias = true
max_fusions = 2

[log]
debug = true
files = ["a.log", "b.log"]
`))
	require.NoError(t, err)
	want := &pipeline.Config{
		Passes: []string{"fuse", "peephole"},
		Fusion: pipeline.FusionCfg{ArgsNoAlias: true, MaxFusions: 2},
		Log:    pipeline.LogCfg{Debug: true, Files: []string{"a.log", "b.log"}},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ParseConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := pipeline.ParseConfig([]byte("[fusion]\nmax_fusions = 1\n"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultPasses, cfg.Passes)
	assert.Equal(t, 1, cfg.Fusion.MaxFusions)
	assert.False(t, cfg.Fusion.ArgsNoAlias, "arguments may overlap unless configured otherwise")
}

func TestParseConfigErrors(t *testing.T) {
	_, err := pipeline.ParseConfig([]byte(`passes = ["peephole", "unroll"]`))
	assert.True(t, errors.Is(err, pipeline.ErrUnknownPass), "%v", err)
	assert.Contains(t, err.Error(), "unroll")

	_, err = pipeline.ParseConfig([]byte("[fusion]\nmax_fusions = -1\n"))
	assert.Error(t, err)

	_, err = pipeline.ParseConfig([]byte("passes = "))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopopt.toml")
	require.NoError(t, os.WriteFile(path, []byte(`passes = ["licm"]`), 0o644))
	cfg, err := pipeline.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"licm"}, cfg.Passes)

	_, err = pipeline.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"fuse", "licm", "peephole"}, pipeline.Names())
	for _, name := range pipeline.Names() {
		p, err := pipeline.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := pipeline.Lookup("gvn")
	assert.True(t, errors.Is(err, pipeline.ErrUnknownPass))
}

func TestNewRejectsUnknownPass(t *testing.T) {
	_, err := pipeline.New(&pipeline.Config{Passes: []string{"dce"}}, nil)
	assert.True(t, errors.Is(err, pipeline.ErrUnknownPass))
}

// scaled builds two loops writing a[i] = i*8 and b[i] = a[i] + i.
func scaled() *ir.Func {
	fn, _ := irtest.Seq("scaled", []string{"a", "b", "n"},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(2), Body: func(b *ir.Builder, iv ir.Value) {
			irtest.StoreAt(b, ir.Arg(0), iv, 0, b.Mul(iv, ir.Const(8)))
		}},
		irtest.Loop{Init: ir.Const(0), Bound: ir.Arg(2), Body: func(b *ir.Builder, iv ir.Value) {
			irtest.StoreAt(b, ir.Arg(1), iv, 0, b.Add(irtest.LoadAt(b, ir.Arg(0), iv, 0), iv))
		}},
	)
	return fn
}

func execute(t *testing.T, fn *ir.Func, n int64) [][]int64 {
	mem := interp.NewMemory()
	_, err := interp.Run(fn, mem, []int64{mem.Alloc(16), mem.Alloc(16), n})
	require.NoError(t, err)
	return mem.Snapshot()
}

func countOps(fn *ir.Func, op ir.Op) int {
	n := 0
	for _, id := range fn.Instrs() {
		if fn.Instr(id).Op == op {
			n++
		}
	}
	return n
}

func TestRunDefaultPipeline(t *testing.T) {
	orig, fn := scaled(), scaled()
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := pipeline.DefaultConfig()
	cfg.Fusion.ArgsNoAlias = true
	p, err := pipeline.New(cfg, logging.FromCore(core))
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultPasses, p.Passes())

	ctx, changed, err := p.RunContext(fn)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, ctx.Diagnostics)
	assert.Zero(t, countOps(fn, ir.OpMul))
	assert.Equal(t, 1, countOps(fn, ir.OpShl))
	assert.Len(t, loop.Discover(fn, dom.New(fn)).Loops(), 1)
	for _, n := range []int64{0, 1, 16} {
		assert.Equal(t, execute(t, orig, n), execute(t, fn, n), "n = %d", n)
	}
	assert.Equal(t, 1, logs.FilterMessageSnippet("peephole changed the function").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("fuse changed the function").Len())

	changed, err = p.Run(fn)
	require.NoError(t, err)
	assert.False(t, changed, "a second run finds nothing")
}

func TestRunHonoursPassOrder(t *testing.T) {
	fn := scaled()
	p, err := pipeline.New(&pipeline.Config{Passes: []string{"peephole"}}, nil)
	require.NoError(t, err)
	changed, err := p.Run(fn)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, loop.Discover(fn, dom.New(fn)).Loops(), 2, "fuse is not configured")
}

func TestRunAliasingArguments(t *testing.T) {
	orig, fn := scaled(), scaled()
	p, err := pipeline.New(pipeline.DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = p.Run(fn)
	require.NoError(t, err)
	assert.Len(t, loop.Discover(fn, dom.New(fn)).Loops(), 2, "a and b may overlap")

	run := func(fn *ir.Func) [][]int64 {
		mem := interp.NewMemory()
		a := mem.Alloc(16)
		_, err := interp.Run(fn, mem, []int64{a, a + 1, 8})
		require.NoError(t, err)
		return mem.Snapshot()
	}
	assert.Equal(t, run(orig), run(fn))
}

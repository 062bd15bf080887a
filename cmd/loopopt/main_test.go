package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const src = `package kernels

func pair(a, b []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i * 8
	}
	for j := 0; j < n; j++ {
		b[j] = a[j] + 1
	}
}

func mask(x, y int) int {
	return x & y
}
`

func write(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCommand(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestOptimiseAll(t *testing.T) {
	out, errOut, err := execute(t, "--no-color", "--args-no-alias", write(t, "kernels.go", src))
	require.NoError(t, err)
	assert.Contains(t, out, "func pair(%a, %b, %n):")
	assert.NotContains(t, out, "mul")
	assert.Equal(t, 1, strings.Count(out, "phi"), "the loops are fused\n%s", out)
	assert.Contains(t, errOut, "skipped lower mask")
}

func TestArgumentsMayOverlap(t *testing.T) {
	out, _, err := execute(t, "--no-color", "--func", "pair", write(t, "kernels.go", src))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "phi"), "b may be a slice of a\n%s", out)
}

func TestSelectPasses(t *testing.T) {
	out, _, err := execute(t, "--no-color", "--func", "pair", "--passes", "peephole", write(t, "kernels.go", src))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "phi"), "fuse is not run\n%s", out)
	assert.NotContains(t, out, "func mask")
}

func TestConfigFile(t *testing.T) {
	cfg := write(t, "loopopt.toml", "passes = [\"fuse\"]\n\n[fusion]\nmax_fusions = 1\n")
	out, _, err := execute(t, "--no-color", "-f", "pair", "--config", cfg, write(t, "kernels.go", src))
	require.NoError(t, err)
	assert.Contains(t, out, "; pair: unchanged")
	assert.Contains(t, out, "mul")
}

func TestErrors(t *testing.T) {
	file := write(t, "kernels.go", src)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no files", []string{}, "requires at least 1 arg"},
		{"unknown pass", []string{"--passes", "unroll", file}, "unroll"},
		{"unknown function", []string{"--func", "missing", file}, "missing"},
		{"unsupported function", []string{"--func", "mask", file}, "lower mask"},
		{"bad jobs", []string{"--jobs", "0", file}, "--jobs"},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "none.toml"), file}, "cannot read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

package build_test

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/nickng/loopopt/ssa/build"
)

var (
	sumProg = `
	package kernels
	func sum(a []int, n int) int {
		s := 0
		for i := 0; i < n; i++ {
			s += a[i]
		}
		return s
	}`
	emptyProg = `package kernels; func nop() {}`
)

// Test loading from files.
func TestBuildFromFiles(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for name, src := range map[string]string{
		"nop.go": emptyProg,
		"sum.go": sumProg,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
		files = append(files, path)
	}
	info, err := build.FromFiles(files).Build()
	if err != nil {
		t.Fatalf("SSA build failed: %v", err)
	}
	if info.Pkg.Func("nop") == nil {
		t.Errorf("cannot find kernels.nop()")
	}
	if info.Pkg.Func("sum") == nil {
		t.Errorf("cannot find kernels.sum()")
	}
	if len(info.Files) != 2 {
		t.Errorf("expects 2 parsed files but got %d", len(info.Files))
	}
}

func TestBuildNoFiles(t *testing.T) {
	if _, err := build.FromFiles(nil).Build(); errors.Cause(err) != build.ErrNoFiles {
		t.Errorf("expects ErrNoFiles but got %v", err)
	}
}

func TestBuildMixedPackages(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.go"), filepath.Join(dir, "b.go")
	os.WriteFile(a, []byte("package a"), 0o644)
	os.WriteFile(b, []byte("package b"), 0o644)
	if _, err := build.FromFiles([]string{a, b}).Build(); errors.Cause(err) != build.ErrMixedPkgs {
		t.Errorf("expects ErrMixedPkgs but got %v", err)
	}
}

// Test loading from string/reader.
func TestBuildFromReader(t *testing.T) {
	info, err := build.FromReader(strings.NewReader(sumProg)).Default().Build()
	if err != nil {
		t.Fatalf("SSA build failed: %v", err)
	}
	if info.Pkg.Func("sum") == nil {
		t.Errorf("cannot find kernels.sum()")
	}
}

func TestBuildTypeError(t *testing.T) {
	_, err := build.FromReader(strings.NewReader(`package kernels; func f() int { return "x" }`)).Build()
	if err == nil {
		t.Errorf("expects type error")
	}
}

func TestWithBuildLog(t *testing.T) {
	buf := new(bytes.Buffer)
	conf := build.FromReader(strings.NewReader(sumProg)).WithBuildLog(buf, log.LstdFlags)
	info, err := conf.Build()
	if err != nil {
		t.Fatalf("SSA build failed: %v", err)
	}
	if info.BldLog != buf {
		t.Errorf("Expects build log to propagate to built SSA, but got: %v",
			info.BldLog)
	}
	if !strings.Contains(buf.String(), "Package kernels loaded and type checked") {
		t.Errorf("Build log was set but not written to\nlog contains:\n%s",
			buf.String())
	}
}

func ExampleFromReader() {
	conf := build.FromReader(strings.NewReader("package kernels; func nop() {}"))
	info, err := conf.Build()
	if err != nil {
		log.Fatalf("SSA build failed: %v", err)
	}
	_ = info // Use info here
	// output:
}

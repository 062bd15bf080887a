package build

import (
	"go/importer"
	"go/token"
	"go/types"
	"io"
	"io/ioutil"
	"log"

	"github.com/pkg/errors"
	gossa "golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/nickng/loopopt/ssa"
)

var (
	ErrNoFiles   = errors.New("no source files")
	ErrMixedPkgs = errors.New("files belong to different packages")
)

type Configurer interface {
	Builder
	Default() Configurer
	WithBuildLog(l io.Writer, flags int) Configurer
	WithMode(mode gossa.BuilderMode) Configurer
}

// Config represents a build configuration.
type Config struct {
	mode gossa.BuilderMode // SSA builder mode.

	bldLog    io.Writer // Build log.
	bldLFlags int       // Build log flags.

	src srcParser // src points to the program source.
}

func newConfig(src srcParser) *Config {
	return &Config{
		bldLog:    ioutil.Discard,
		bldLFlags: log.LstdFlags,
		src:       src,
	}
}

// WithBuildLog adds build log to config.
func (c *Config) WithBuildLog(l io.Writer, flags int) Configurer {
	c.bldLog = l
	c.bldLFlags = flags
	return c
}

// WithMode sets the mode of the SSA builder.
func (c *Config) WithMode(mode gossa.BuilderMode) Configurer {
	c.mode = mode
	return c
}

// Build parses and type-checks the package and builds its SSA.
func (c *Config) Build() (*ssa.Info, error) {
	bldLog := log.New(c.bldLog, "ssabuild: ", c.bldLFlags)
	fset := token.NewFileSet()
	files, err := c.src.parse(fset)
	if err != nil {
		return nil, err
	}
	name := files[0].Name.Name
	for _, f := range files[1:] {
		if f.Name.Name != name {
			return nil, errors.Wrapf(ErrMixedPkgs, "%s and %s", name, f.Name.Name)
		}
	}

	tc := &types.Config{Importer: importer.Default()}
	pkg, _, err := ssautil.BuildPackage(tc, fset, types.NewPackage(name, name), files, c.mode)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build SSA")
	}
	bldLog.Printf("Package %s loaded and type checked", name)

	return &ssa.Info{
		FSet:   fset,
		Files:  files,
		Pkg:    pkg,
		BldLog: c.bldLog,
	}, nil
}

// Default returns a default configuration for the loop passes.
func (c *Config) Default() Configurer {
	return c.WithMode(gossa.SanityCheckFunctions)
}

package pipeline

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Config is the configuration of a pipeline, usually read from a TOML file:
//
//	passes = ["peephole", "licm", "fuse"]
//
//	[fusion]
//	args_no_alias = false
//	max_fusions = 0
//
//	[log]
//	debug = true
//	files = ["loopopt.log"]
type Config struct {
	Passes []string  `toml:"passes"`
	Fusion FusionCfg `toml:"fusion"`
	Log    LogCfg    `toml:"log"`
}

// FusionCfg configures the fuse pass.
type FusionCfg struct {
	ArgsNoAlias bool `toml:"args_no_alias"` // Pointer arguments never overlap.
	MaxFusions  int  `toml:"max_fusions"`   // Fusions per function, 0 for no bound.
}

// LogCfg configures logging.
type LogCfg struct {
	Debug bool     `toml:"debug"`
	Files []string `toml:"files"`
}

// DefaultPasses is the pass order used when none is configured.
var DefaultPasses = []string{"peephole", "licm", "fuse"}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return &Config{Passes: append([]string(nil), DefaultPasses...)}
}

// ParseConfig parses a TOML configuration. Missing keys keep their default.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML configuration file path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Validate checks that every configured pass exists.
func (c *Config) Validate() error {
	for _, name := range c.Passes {
		if _, ok := registry[name]; !ok {
			return errors.Wrap(ErrUnknownPass, name)
		}
	}
	if c.Fusion.MaxFusions < 0 {
		return errors.Errorf("max_fusions must not be negative, got %d", c.Fusion.MaxFusions)
	}
	return nil
}

// Package logging wraps a zap SugaredLogger with the name of the pass or
// component writing to it.
package logging

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger encapsulates a Logger and module which it belongs to.
type Logger struct {
	*zap.SugaredLogger
	module  string
	colored bool // module tags are painted
}

// Module returns (stylised) module name.
func (l *Logger) Module() string {
	return l.module
}

// modules maps well known module names to the colour of their tag.
var modules = map[string]func(string, ...interface{}) string{
	"fuse":     color.GreenString,
	"licm":     color.BlueString,
	"peephole": color.YellowString,
	"pipeline": color.MagentaString,
	"lower":    color.CyanString,
}

// With returns a child logger tagged with module. The tag is padded so that
// messages of different modules line up, and coloured on debug loggers.
func (l *Logger) With(module string) *Logger {
	paint := fmt.Sprintf
	if l.colored {
		var ok bool
		if paint, ok = modules[module]; !ok {
			paint = color.RedString
		}
	}
	return &Logger{SugaredLogger: l.SugaredLogger, module: paint("%-8s", module), colored: l.colored}
}

// New returns a new logger with default options. A debug logger is a
// human-readable development logger with coloured module tags; otherwise it
// is a production logger with plain tags.
func New(debug bool) (*Logger, error) {
	return NewFile(debug)
}

// NewFile returns a new logger that also writes the log output to files.
func NewFile(debug bool, files ...string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = append(cfg.OutputPaths, files...)
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create new logger")
	}
	return &Logger{SugaredLogger: l.Sugar(), colored: debug}, nil
}

// FromCore returns a logger writing to core. Its module tags are plain.
func FromCore(core zapcore.Core) *Logger {
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Tracef logs a debug message prefixed with the module tag.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Debugf("%s %s", l.module, fmt.Sprintf(format, args...))
}

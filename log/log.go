// Package log builds the zap loggers used across peersync components.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// ConsoleEncoder logs human readable lines.
	ConsoleEncoder = "console"
	// JSONEncoder logs one JSON object per line.
	JSONEncoder = "json"
)

// where logs go by default.
var logWriter io.Writer = os.Stdout

// New creates the process logger. Level is the most verbose level any named
// child may use; children narrow it with Named.
func New(name string, level zap.AtomicLevel, encoding string) *zap.Logger {
	return newWithWriter(name, level, encoding, zapcore.AddSync(logWriter))
}

func newWithWriter(name string, level zap.AtomicLevel, encoding string, w zapcore.WriteSyncer) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if encoding == JSONEncoder {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	return zap.New(zapcore.NewCore(enc, w, level)).Named(name)
}

// ParseLevel parses a level name, falling back to def on empty input.
func ParseLevel(name string, def zapcore.Level) (zap.AtomicLevel, error) {
	if name == "" {
		return zap.NewAtomicLevelAt(def), nil
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(name))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("parse log level %q: %w", name, err)
	}
	return lvl, nil
}

// Named returns a child logger with its own level. The child can't be more
// verbose than its parent core.
func Named(logger *zap.Logger, name string, level zap.AtomicLevel) *zap.Logger {
	return logger.Named(name).WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &coreWithLevel{Core: core, lvl: level}
	}))
}

type coreWithLevel struct {
	zapcore.Core
	lvl zap.AtomicLevel
}

func (c *coreWithLevel) Enabled(level zapcore.Level) bool {
	return c.lvl.Enabled(level)
}

func (c *coreWithLevel) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.lvl.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *coreWithLevel) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithLevel{Core: c.Core.With(fields), lvl: c.lvl}
}

// Package logging configures the structured logger shared by every
// component. It generalizes the teacher repo's hand-rolled Field/Logger
// API (internal/logger in the teacher) to go.uber.org/zap, the ecosystem
// library two sibling pack repos depend on directly for the same purpose.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls verbosity, matching the CLI's --verbose/--quiet flags.
type Options struct {
	Verbose bool
	Quiet   bool
}

// New builds a console-encoded logger. Non-verbose mode never prints
// stacktraces (spec §7: "no stack traces in non-verbose mode").
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch {
	case opts.Verbose:
		level = zapcore.DebugLevel
	case opts.Quiet:
		level = zapcore.WarnLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)

	logOpts := []zap.Option{}
	if opts.Verbose {
		logOpts = append(logOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(core, logOpts...), nil
}

// Nop returns a no-op logger, used by unit tests that don't care about
// log output.
func Nop() *zap.Logger {
	return zap.NewNop()
}

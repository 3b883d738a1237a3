// Package logging builds the zap logger used by the glyphos CLI.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"glyphos/pkg/config"
)

// New builds a logger writing to w. Format "auto" picks the console encoder
// when w is a terminal and JSON otherwise.
func New(cfg config.LoggingConfig, w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format(cfg.Format, w) {
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()), nil
}

// NewStderr builds a logger on os.Stderr.
func NewStderr(cfg config.LoggingConfig) (*zap.Logger, error) {
	return New(cfg, os.Stderr)
}

// OrNop returns l, or a no-op logger when l is nil. Library constructors use
// it so a nil logger is always safe.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func format(f string, w io.Writer) string {
	if f != "" && f != "auto" {
		return f
	}
	if file, ok := w.(*os.File); ok && isatty.IsTerminal(file.Fd()) {
		return "console"
	}
	return "json"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

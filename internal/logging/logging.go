// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"dqx0.com/go/greeter/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a slog.Logger for cfg and a Closer that releases its output.
// With cfg.File empty the logger writes to stderr.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	if cfg.File == "" {
		l, err := NewWriter(os.Stderr, cfg)
		return l, nopCloser{}, err
	}
	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
	}
	l, err := NewWriter(out, cfg)
	if err != nil {
		return nil, nil, err
	}
	return l, out, nil
}

// NewWriter returns a slog.Logger writing to w in cfg's level and format.
func NewWriter(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, errors.Errorf("unknown log format %q", cfg.Format)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(100)}))
}

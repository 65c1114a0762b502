package obs

import (
	"context"
	"fmt"
	"log/slog"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case Debug:
		return slog.LevelDebug
	case Warn:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is a minimal logging interface for observability.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
}

// NopLogger discards all logs.
type NopLogger struct{}

func (NopLogger) Logf(level Level, format string, args ...interface{}) {}

// SlogLogger adapts a *slog.Logger. Messages are formatted with fmt before
// being handed to the handler, so level filtering happens first.
type SlogLogger struct {
	L *slog.Logger
}

func (s SlogLogger) Logf(level Level, format string, args ...interface{}) {
	if s.L == nil {
		return
	}
	ctx := context.Background()
	if !s.L.Enabled(ctx, level.slog()) {
		return
	}
	s.L.Log(ctx, level.slog(), fmt.Sprintf(format, args...))
}

// OrNop returns l, or NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

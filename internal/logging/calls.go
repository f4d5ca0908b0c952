// Package logging provides structured logging of timer method calls.
package logging

import (
	"context"
	"io"
	"log/slog"
)

// Logger wraps slog for structured call logging.
type Logger struct {
	*slog.Logger
	source string
}

// New creates a call logger on top of base. A nil base uses slog.Default.
func New(base *slog.Logger, source string) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{Logger: base, source: source}
}

// NewJSON creates a call logger that writes JSON lines to w.
func NewJSON(w io.Writer, level slog.Leveler, source string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return New(slog.New(handler), source)
}

// WithSource returns a Logger tagged with a different source (api, cli).
func (l *Logger) WithSource(source string) *Logger {
	return &Logger{Logger: l.Logger, source: source}
}

// LogCall logs a timer method invocation with its outcome. Failures are
// logged at warn level, successes at info.
func (l *Logger) LogCall(ctx context.Context, method string, args []string, err error) {
	attrs := []slog.Attr{
		slog.String("source", l.source),
		slog.String("method", method),
	}
	if len(args) > 0 {
		attrs = append(attrs, slog.Any("args", args))
	}

	level := slog.LevelInfo
	result := "ok"
	if err != nil {
		level = slog.LevelWarn
		result = "error"
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	attrs = append(attrs, slog.String("result", result))

	l.LogAttrs(ctx, level, "timer_call", attrs...)
}

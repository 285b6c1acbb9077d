// Package logging is the structured logger shared by the collector and the
// agent. It is a thin layer over log/slog that knows how to pick up the
// request ID set by middleware.RequestID.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/telhawk-systems/logship/common/middleware"
)

// Output formats accepted by New and NewWithWriter.
const (
	FormatJSON = "json"
	FormatText = "text"
)

type Logger struct {
	*slog.Logger
}

// New logs to stdout. format is FormatJSON or FormatText; anything else
// means JSON.
func New(level slog.Level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter logs to w. Debug loggers also record the source location.
func NewWithWriter(w io.Writer, level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	if strings.EqualFold(format, FormatText) {
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, opts))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, opts))}
}

// Default wraps slog.Default.
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// Discard drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetDefault installs l as the process logger, for slog and the log
// package alike.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

// WithContext returns l with request_id attached when ctx carries one.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	reqID := middleware.GetRequestID(ctx)
	if reqID == "" {
		return l.Logger
	}
	return l.Logger.With(slog.String(FieldRequestID, reqID))
}

func (l *Logger) logContext(ctx context.Context, level slog.Level, msg string, args []any) {
	if !l.Enabled(ctx, level) {
		return
	}
	l.WithContext(ctx).Log(ctx, level, msg, args...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logContext(ctx, slog.LevelDebug, msg, args)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logContext(ctx, slog.LevelInfo, msg, args)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logContext(ctx, slog.LevelWarn, msg, args)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logContext(ctx, slog.LevelError, msg, args)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{Logger: l.Logger.WithGroup(name)}
}

// ParseLevel reads a level name as slog does ("debug", "INFO", "warn+2")
// and also accepts "warning". Unknown or empty input is info.
func ParseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

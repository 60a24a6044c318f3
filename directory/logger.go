package directory

import (
	"context"
	"log/slog"
)

// Logger is the logging surface used throughout the library. Credential
// values must never be passed in fields.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}

// SlogLogger adapts a *slog.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger wraps the given slog logger; nil uses slog.Default().
func NewSlogLogger(log *slog.Logger) *SlogLogger {
	if log == nil {
		log = slog.Default()
	}
	return &SlogLogger{log: log}
}

func (l *SlogLogger) Debug(msg string, fields map[string]any) {
	l.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs(fields)...)
}

func (l *SlogLogger) Info(msg string, fields map[string]any) {
	l.log.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs(fields)...)
}

func (l *SlogLogger) Warn(msg string, fields map[string]any) {
	l.log.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs(fields)...)
}

func (l *SlogLogger) Error(msg string, fields map[string]any) {
	l.log.LogAttrs(context.Background(), slog.LevelError, msg, attrs(fields)...)
}

func attrs(fields map[string]any) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		out = append(out, slog.Any(k, v))
	}
	return out
}

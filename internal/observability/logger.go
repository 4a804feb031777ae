package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger writes one JSON object per line. Fields are attached as top-level
// keys next to the message.
type Logger struct {
	base *slog.Logger
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout)
}

func NewLoggerTo(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "timestamp"
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.MessageKey:
				a.Key = "message"
			case slog.LevelKey:
				a.Value = slog.StringValue(levelName(a.Value.Any()))
			}
			return a
		},
	})
	return &Logger{base: slog.New(handler)}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.write(slog.LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.write(slog.LevelWarn, message, fields)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.write(slog.LevelError, message, fields)
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{base: l.base.With(attrs(fields)...)}
}

func (l *Logger) write(level slog.Level, message string, fields map[string]any) {
	l.base.LogAttrs(context.Background(), level, message, toAttrs(fields)...)
}

func attrs(fields map[string]any) []any {
	out := make([]any, 0, len(fields))
	for _, attr := range toAttrs(fields) {
		out = append(out, attr)
	}
	return out
}

func toAttrs(fields map[string]any) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		out = append(out, slog.Any(k, v))
	}
	return out
}

func levelName(v any) string {
	level, ok := v.(slog.Level)
	if !ok {
		return "info"
	}
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

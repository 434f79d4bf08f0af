package logger

import (
	"io"
	"os"
	"strings"

	"log/slog"
)

// Logger bundles an slog.Logger with its level var so the level can be
// adjusted at runtime (config reload) without rebuilding the handler chain.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	var lv slog.LevelVar
	lv.Set(ParseLevel(level))
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &lv})
	return &Logger{Logger: slog.New(handler), level: &lv}
}

// SetLevel re-parses and applies a level string. Unknown values fall back
// to info, matching ParseLevel.
func (l *Logger) SetLevel(level string) {
	if l == nil || l.level == nil {
		return
	}
	l.level.Set(ParseLevel(level))
}

// With returns a Logger whose slog.Logger carries the given attributes.
// The level var is shared, so SetLevel on either affects both.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

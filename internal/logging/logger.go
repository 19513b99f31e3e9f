// Package logging builds the slog loggers used by workers and the server.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a level name to a slog.Level. Unknown values default to
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled logger writing text, or JSON when format is
// "json", to w.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ForInstance tags every record with the worker instance id.
func ForInstance(l *slog.Logger, id int) *slog.Logger {
	return l.With(slog.Int("instance", id))
}

// Discard drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New initializes a JSON slog.Logger writing to stdout.
// Log level can be debug, info, warn, error; anything else means info.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a configured level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

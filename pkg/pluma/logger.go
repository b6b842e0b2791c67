package pluma

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetDefaultLogger installs a stdout logger as the slog default and returns it.
func SetDefaultLogger(level, format string) *slog.Logger {
	log := NewLogger(os.Stdout, level, format)
	slog.SetDefault(log)
	return log
}

// NewLogger builds a text or json logger writing to w.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return lvl
}

package internal

import (
	"io"
	"log/slog"
	"strings"
)

func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// CalendarLogger tags every line with the calendar it refers to.
func CalendarLogger(logger *slog.Logger, cal *Calendar) *slog.Logger {
	if cal == nil {
		return logger
	}
	return logger.With("calendar", cal.String())
}

// Discard is used when no logger is configured.
var Discard = slog.New(slog.NewTextHandler(io.Discard, nil))

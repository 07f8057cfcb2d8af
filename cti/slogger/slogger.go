// Package slogger configures the process-wide slog logger.
//
// Call Init() at the start of main(). LOG_LEVEL selects the level ("debug",
// "info", "warn", "error"; default "info") and LOG_FORMAT the handler ("text"
// or "json"; default "text").
package slogger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// level holds the dynamic log level so it can be queried at runtime.
var level *slog.LevelVar

// Init configures the default logger from the environment and writes to
// stderr so command output on stdout stays clean.
func Init() {
	InitWith(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// InitWith configures the default logger with an explicit writer, level and
// format. Empty values fall back to the defaults.
func InitWith(w io.Writer, lvl, format string) {
	level = &slog.LevelVar{}
	level.Set(parseLevel(lvl))
	slog.SetDefault(slog.New(newHandler(w, level, format)))
}

// New builds a standalone logger without touching the default.
func New(w io.Writer, lvl, format string) *slog.Logger {
	return slog.New(newHandler(w, parseLevel(lvl), format))
}

// SetLevel changes the level of the logger configured by Init.
func SetLevel(lvl string) {
	if level == nil {
		level = &slog.LevelVar{}
	}
	level.Set(parseLevel(lvl))
}

// Level returns the current slog.Level.
func Level() slog.Level {
	if level == nil {
		return slog.LevelInfo
	}
	return level.Level()
}

// IsDebug returns true when the current log level is debug or lower.
func IsDebug() bool {
	return Level() <= slog.LevelDebug
}

func newHandler(w io.Writer, lvl slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

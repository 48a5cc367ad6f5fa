// Package observability wires logging, metrics, and trace export for the
// wallet. All of it is local-first: logs go to stderr, traces and metric
// snapshots to files, and the Prometheus endpoint only exists when a debug
// address is configured.
package observability

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger. Unknown levels fall back to info so
// a typo in config degrades loudly rather than silencing the log.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	if strings.ToLower(strings.TrimSpace(level)) != "" && lvl == slog.LevelInfo &&
		!isKnownLevel(level) {
		logger.Warn("unknown log level, using info", "level", level)
	}
	return logger
}

func isKnownLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

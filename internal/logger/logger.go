// Package logger provides structured logging setup for MAGI.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/nerv-labs/magi/internal/config"
)

// New creates a JSON slog.Logger writing to stdout, tagged with the
// service name. Unknown level strings fall back to info.
func New(cfg config.Logging) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler).With("service", cfg.Service)
}

func parseLevel(s string) slog.Level {
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

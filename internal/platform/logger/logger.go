// Package logger builds the process-wide slog logger. Services receive it
// through options; nothing logs through a package-level default.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a logger configured for the given environment. Development
// gets human-readable text at debug level; everything else gets JSON at info.
func New(env string) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}

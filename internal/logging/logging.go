// Package logging constructs the single *slog.Logger handle the daemon
// threads explicitly into every component (no package-level global logger).
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
)

// Config configures the logger.
type Config struct {
	Level  string // debug, info, warn, error
	Output io.Writer
}

// New builds a slog.Logger backed by charmbracelet/log, matching the
// teacher's cmd/sensors/air.go construction.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	charm := chlog.NewWithOptions(out, chlog.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	charm.SetLevel(parseLevel(cfg.Level))

	return slog.New(charm)
}

func parseLevel(level string) chlog.Level {
	switch level {
	case "debug":
		return chlog.DebugLevel
	case "warn":
		return chlog.WarnLevel
	case "error":
		return chlog.ErrorLevel
	default:
		return chlog.InfoLevel
	}
}

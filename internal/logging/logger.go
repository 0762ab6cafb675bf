package logging

import (
	"fmt"
	"os"
	"strings"

	"log/slog"

	"github.com/ctrlpath/evalcore/internal/flagconfig"
)

// New shapes slog so emitted telemetry matches the runtime policy described
// in flagconfig.LoggingConfig and tags every record with component=evalcore.
// Per-subsystem loggers are derived from it with Sub.
func New(cfg flagconfig.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("logging: unsupported level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}

	return slog.New(handler).With(slog.String("component", "evalcore")), nil
}

// Sub derives a subsystem logger, e.g. logging.Sub(base, "resolver").
func Sub(base *slog.Logger, subsystem string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String("agent", subsystem))
}

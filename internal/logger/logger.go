// Package logger builds the process-wide *slog.Logger.
//
// Development (dev): human-readable text output at DEBUG level.
// Staging / production: machine-readable JSON output, DEBUG and INFO
// respectively. JSON logs are easy to ingest by log aggregators.
//
// An explicit level (LOG_LEVEL) overrides the per-environment default.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New returns a logger writing to w for the given environment and level.
// An empty level keeps the environment default.
func New(w io.Writer, env, level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch env {
	case "prod", "production":
		lvl = slog.LevelInfo
	default:
		lvl = slog.LevelDebug
	}

	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			return nil, fmt.Errorf("logger: invalid level %q: %w", level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch env {
	case "prod", "production", "staging":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
}

// Err is shorthand for the "error" attribute used across the codebase.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

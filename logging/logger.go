// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Format selects how log records are rendered.
type Format string

const (
	// FormatJSON emits one JSON object per line (the default for production).
	FormatJSON Format = "json"
	// FormatConsole emits a human-readable, colorized line (for local runs).
	FormatConsole Format = "console"
)

var base zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// ParseLevel parses a level string ("debug", "info", "warn", "error").
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// Init installs the process-wide logger. Safe to call once at process start.
func Init(level zerolog.Level, output io.Writer, format Format) {
	var w io.Writer = output
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Get returns the process-wide logger.
func Get() *zerolog.Logger {
	return &base
}

// OpenLogFile opens (creating/appending) a log file and returns a cleanup func.
func OpenLogFile(path string) (*os.File, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// With returns a child logger carrying job/tenant correlation fields.
func With(tenantID, jobID string) zerolog.Logger {
	ctx := base.With()
	if tenantID != "" {
		ctx = ctx.Str("tenant_id", tenantID)
	}
	if jobID != "" {
		ctx = ctx.Str("job_id", jobID)
	}
	return ctx.Logger()
}

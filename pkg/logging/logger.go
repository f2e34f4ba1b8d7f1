// Package logging configures the process-wide zerolog logger for the ETL.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string

	// Pretty enables human-readable console output (default: JSON).
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Pretty: false,
		Output: os.Stderr,
	}
}

// ParseLevel converts a level name to a zerolog level. The empty string
// means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Setup configures the global zerolog logger. Unknown levels fall back to
// info; validate with ParseLevel beforehand to reject them.
func Setup(cfg Config) zerolog.Logger {
	level, _ := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// NewLogger creates a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request and per-batch detail
//   - Catalog requests (kind, url)
//   - Page fetched, batch committed
//   - Pipeline state changes
//
// Info: run milestones
//   - Listing discovered (count, total_pages)
//   - Record enriched (name, homeworld), batch loaded
//   - Schema reset, run completed with duration
//
// Warn: failures that end a unit of work
//   - Failed catalog request (status, error_class)
//   - Page fetch failed, batch rolled back
//   - Progress sink write failed
//
// Error: the run cannot complete
//   - Run failed
//   - Configuration or connection errors at startup
//
// Context Fields:
//   - component: client, enricher, pipeline, store, progress, main
//   - run_id: pipeline run identifier
//   - page: 1-based listing page
//   - url: reference or listing URL
//   - status: HTTP status code
//   - error_class: client, server, unexpected, network, decode
//   - rows: rows in a batch
//   - duration: elapsed time

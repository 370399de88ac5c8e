// Package logging configures the process-wide zerolog logger.
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
	// Level is the minimum level to output: debug, info, warn or error.
	Level string

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Output: os.Stderr}
}

// ParseLevel converts a level name into a zerolog level. An empty name is
// info; an unknown one is an error so that config typos surface at startup.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Setup configures the global logger and returns it.
func Setup(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "eld-analysis").Logger()
	log.Logger = logger
	return logger, nil
}

// NewLogger derives a logger tagged with component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines
//
// Debug: per-company fetch outcomes, store writes, progress ticks
//
// Info: run start and finish, retry phase transitions, server lifecycle
//
// Warn: a retry attempt that still has failures, a failed sink write,
// an attempt error after the first attempt, a skipped overlapping sweep
//
// Error: unrecoverable run errors and invalid configuration
//
// Common fields: tenant, run_id, attempt, company_id, status_code,
// error_class, duration, successful, failed.

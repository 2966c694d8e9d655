// Package logging configures zerolog for the render pool and its tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs acquire/release and cache lookups.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs pool lifecycle and recovered fetches.
	LevelInfo LogLevel = "info"

	// LevelWarn logs session failures and relaunches.
	LevelWarn LogLevel = "warn"

	// LevelError logs exhausted fetches and startup failures only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name. The empty string means info.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Session acquire/release and wait time
//   - Cache hit/miss and keys
//   - Pages skipped by the cache
//
// Info: Normal operation events
//   - Pool opened/closed, sessions relaunched
//   - Fetches that succeeded after a retry
//   - Batch start, progress and completion
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Session failures (navigation, wait, extraction)
//   - Relaunch failures (session left broken)
//   - Cache errors (fallback to rendering)
//   - Per-URL batch failures
//
// Error: Error conditions requiring attention
//   - Fetches that exhausted every attempt
//   - Pool startup failures
//   - Configuration errors
//
// Context Fields:
//   - component: render-pool, batch, render-cache, render-proxy
//   - session: session name (session-<index>)
//   - handle: browser handle ID
//   - url: requested URL
//   - attempt / max_attempts: fetch attempt counters
//   - duration: operation duration

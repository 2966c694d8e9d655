package pool

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// DefaultMaxAttempts is the number of fetch attempts (initial plus retries).
const DefaultMaxAttempts = 5

// Config holds the pool configuration.
type Config struct {
	// Size is the number of sessions. Must be >= 1.
	Size int

	// Engine, when set, is used as-is and owned by the pool from then on.
	// Otherwise Driver and Browser select a registered engine driver.
	Engine  engine.Engine
	Driver  string
	Browser string

	// LaunchOptions are passed to every session launch unmodified.
	LaunchOptions engine.Options

	// LaunchTimeout bounds each session launch (0 = no bound).
	LaunchTimeout time.Duration

	// Fetch defaults, used when a FetchRequest leaves them empty.
	WaitUntil       engine.LoadState
	WaitForSelector string

	// Retry
	MaxAttempts  int
	RetryBackoff time.Duration // 0 retries immediately
	MaxBackoff   time.Duration

	// NavigationTimeout bounds one attempt's navigate/wait/extract (0 = no bound).
	NavigationTimeout time.Duration

	// Logger for pool events (default: global logger with component=render-pool).
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration matching the reference behaviour:
// five Chromium sessions through Playwright, five attempts per URL.
func DefaultConfig() Config {
	return Config{
		Size:              5,
		Driver:            "playwright",
		Browser:           "chromium",
		LaunchTimeout:     60 * time.Second,
		WaitUntil:         engine.LoadStateDOMContentLoaded,
		MaxAttempts:       DefaultMaxAttempts,
		RetryBackoff:      0,
		MaxBackoff:        10 * time.Second,
		NavigationTimeout: 30 * time.Second,
	}
}

// validate checks the configuration and fills defaults.
func (c *Config) validate() error {
	if c.Size < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPoolSize, c.Size)
	}
	if c.Engine == nil && c.Driver == "" {
		return fmt.Errorf("engine or driver is required")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.WaitUntil == "" {
		c.WaitUntil = engine.LoadStateDOMContentLoaded
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must be >= 0 (got %s)", c.RetryBackoff)
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	return nil
}

func (c *Config) logger() zerolog.Logger {
	if c.Logger != nil {
		return c.Logger.With().Str("component", "render-pool").Logger()
	}
	return log.With().Str("component", "render-pool").Logger()
}

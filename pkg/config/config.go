// Package config loads render pool settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/render-pool/pkg/batch"
	"github.com/Sternrassler/render-pool/pkg/engine"
	"github.com/Sternrassler/render-pool/pkg/logging"
	"github.com/Sternrassler/render-pool/pkg/pool"
)

// Config is the complete render pool configuration.
type Config struct {
	Pool    PoolSettings    `yaml:"pool"`
	Fetch   FetchSettings   `yaml:"fetch"`
	Batch   BatchSettings   `yaml:"batch"`
	Cache   CacheSettings   `yaml:"cache"`
	Logging LoggingSettings `yaml:"logging"`
	Server  ServerSettings  `yaml:"server"`
}

// PoolSettings selects the engine and sizes the pool.
type PoolSettings struct {
	Size          int            `yaml:"size"`
	Driver        string         `yaml:"driver"`
	Browser       string         `yaml:"browser"`
	LaunchOptions map[string]any `yaml:"launch_options"`
	LaunchTimeout Duration       `yaml:"launch_timeout"`
}

// FetchSettings controls a single fetch.
type FetchSettings struct {
	WaitUntil         string   `yaml:"wait_until"`
	WaitForSelector   string   `yaml:"wait_for_selector"`
	MaxAttempts       int      `yaml:"max_attempts"`
	RetryBackoff      Duration `yaml:"retry_backoff"`
	MaxBackoff        Duration `yaml:"max_backoff"`
	NavigationTimeout Duration `yaml:"navigation_timeout"`
}

// BatchSettings controls orchestrated streaming.
type BatchSettings struct {
	Size int `yaml:"size"`
}

// CacheSettings enables the Redis page cache when RedisURL is set.
type CacheSettings struct {
	RedisURL string `yaml:"redis_url"`
}

// LoggingSettings configures zerolog.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ServerSettings configures the render proxy.
type ServerSettings struct {
	Port            string   `yaml:"port"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := pool.DefaultConfig()
	return Config{
		Pool: PoolSettings{
			Size:          p.Size,
			Driver:        p.Driver,
			Browser:       p.Browser,
			LaunchTimeout: DurationFrom(p.LaunchTimeout),
		},
		Fetch: FetchSettings{
			WaitUntil:         string(p.WaitUntil),
			MaxAttempts:       p.MaxAttempts,
			RetryBackoff:      DurationFrom(p.RetryBackoff),
			MaxBackoff:        DurationFrom(p.MaxBackoff),
			NavigationTimeout: DurationFrom(p.NavigationTimeout),
		},
		Batch: BatchSettings{
			Size: batch.DefaultBatchSize,
		},
		Logging: LoggingSettings{
			Level: string(logging.LevelInfo),
		},
		Server: ServerSettings{
			Port:            "8080",
			RequestTimeout:  DurationFrom(2 * time.Minute),
			ShutdownTimeout: DurationFrom(10 * time.Second),
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()

		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader decodes and validates configuration from r without
// consulting the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables looked up with
// lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", key, v)
		}
		*dst = n
		return nil
	}

	str("RENDER_DRIVER", &c.Pool.Driver)
	str("RENDER_BROWSER", &c.Pool.Browser)
	str("RENDER_WAIT_UNTIL", &c.Fetch.WaitUntil)
	str("RENDER_WAIT_FOR_SELECTOR", &c.Fetch.WaitForSelector)
	str("REDIS_URL", &c.Cache.RedisURL)
	str("LOG_LEVEL", &c.Logging.Level)
	str("PORT", &c.Server.Port)

	if err := num("RENDER_POOL_SIZE", &c.Pool.Size); err != nil {
		return err
	}
	if err := num("RENDER_MAX_ATTEMPTS", &c.Fetch.MaxAttempts); err != nil {
		return err
	}
	if err := num("RENDER_BATCH_SIZE", &c.Batch.Size); err != nil {
		return err
	}

	if v, ok := lookup("LOG_PRETTY"); ok && v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_PRETTY: invalid boolean %q", v)
		}
		c.Logging.Pretty = pretty
	}
	return nil
}

// Validate enforces required invariants.
func (c Config) Validate() error {
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be >= 1 (got %d)", c.Pool.Size)
	}
	if strings.TrimSpace(c.Pool.Driver) == "" {
		return errors.New("pool.driver must be set")
	}
	if c.Pool.LaunchTimeout.Duration < 0 {
		return fmt.Errorf("pool.launch_timeout must be >= 0 (got %s)", c.Pool.LaunchTimeout)
	}
	if _, err := engine.ParseLoadState(c.Fetch.WaitUntil); err != nil {
		return fmt.Errorf("fetch.wait_until: %w", err)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be >= 1 (got %d)", c.Fetch.MaxAttempts)
	}
	if c.Fetch.RetryBackoff.Duration < 0 {
		return fmt.Errorf("fetch.retry_backoff must be >= 0 (got %s)", c.Fetch.RetryBackoff)
	}
	if c.Fetch.NavigationTimeout.Duration < 0 {
		return fmt.Errorf("fetch.navigation_timeout must be >= 0 (got %s)", c.Fetch.NavigationTimeout)
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("batch.size must be >= 1 (got %d)", c.Batch.Size)
	}
	if c.Cache.RedisURL != "" {
		if _, err := redis.ParseURL(c.Cache.RedisURL); err != nil {
			return fmt.Errorf("cache.redis_url: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("server.port must be set")
	}
	return nil
}

// PoolConfig converts the settings into a pool configuration. logger may be nil.
func (c Config) PoolConfig(logger *zerolog.Logger) pool.Config {
	waitUntil, _ := engine.ParseLoadState(c.Fetch.WaitUntil)

	return pool.Config{
		Size:              c.Pool.Size,
		Driver:            c.Pool.Driver,
		Browser:           c.Pool.Browser,
		LaunchOptions:     engine.Options(c.Pool.LaunchOptions),
		LaunchTimeout:     c.Pool.LaunchTimeout.Duration,
		WaitUntil:         waitUntil,
		WaitForSelector:   c.Fetch.WaitForSelector,
		MaxAttempts:       c.Fetch.MaxAttempts,
		RetryBackoff:      c.Fetch.RetryBackoff.Duration,
		MaxBackoff:        c.Fetch.MaxBackoff.Duration,
		NavigationTimeout: c.Fetch.NavigationTimeout.Duration,
		Logger:            logger,
	}
}

// BatchConfig converts the settings into an orchestrator configuration.
func (c Config) BatchConfig(logger *zerolog.Logger) batch.Config {
	cfg := batch.DefaultConfig()
	cfg.BatchSize = c.Batch.Size
	cfg.Logger = logger
	return cfg
}

// LoggingConfig converts the settings into a logger configuration.
func (c Config) LoggingConfig(output io.Writer) logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{Level: level, Pretty: c.Logging.Pretty, Output: output}
}

// RedisOptions parses the cache URL. It returns nil when caching is disabled.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.Cache.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(c.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

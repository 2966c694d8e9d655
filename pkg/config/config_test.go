package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/render-pool/pkg/engine"
	"github.com/Sternrassler/render-pool/pkg/logging"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pool.Size != 5 || cfg.Pool.Driver != "playwright" || cfg.Pool.Browser != "chromium" {
		t.Errorf("Pool = %+v, want 5 chromium sessions via playwright", cfg.Pool)
	}
	if cfg.Fetch.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Fetch.MaxAttempts)
	}
	if cfg.Batch.Size != 50 {
		t.Errorf("Batch.Size = %d, want 50", cfg.Batch.Size)
	}
}

func TestLoadFromReader(t *testing.T) {
	yamlDoc := `
pool:
  size: 3
  driver: chromedp
  launch_options:
    headless: true
    args: ["--no-sandbox"]
  launch_timeout: 45s
fetch:
  wait_until: networkidle
  wait_for_selector: "div.content"
  max_attempts: 7
  retry_backoff: 250ms
  navigation_timeout: 20
batch:
  size: 10
cache:
  redis_url: redis://localhost:6379/2
logging:
  level: debug
  pretty: true
`
	cfg, err := LoadFromReader(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if cfg.Pool.Size != 3 || cfg.Pool.Driver != "chromedp" {
		t.Errorf("Pool = %+v", cfg.Pool)
	}
	if cfg.Pool.Browser != "chromium" {
		t.Errorf("Browser = %q, want default chromium", cfg.Pool.Browser)
	}
	if cfg.Pool.LaunchOptions["headless"] != true {
		t.Errorf("LaunchOptions = %v", cfg.Pool.LaunchOptions)
	}
	if cfg.Pool.LaunchTimeout.Duration != 45*time.Second {
		t.Errorf("LaunchTimeout = %v, want 45s", cfg.Pool.LaunchTimeout)
	}
	if cfg.Fetch.RetryBackoff.Duration != 250*time.Millisecond {
		t.Errorf("RetryBackoff = %v, want 250ms", cfg.Fetch.RetryBackoff)
	}
	if cfg.Fetch.NavigationTimeout.Duration != 20*time.Second {
		t.Errorf("NavigationTimeout = %v, want 20s from plain seconds", cfg.Fetch.NavigationTimeout)
	}

	pc := cfg.PoolConfig(nil)
	if pc.WaitUntil != engine.LoadStateNetworkIdle {
		t.Errorf("WaitUntil = %q, want networkidle", pc.WaitUntil)
	}
	if pc.MaxAttempts != 7 || pc.WaitForSelector != "div.content" || pc.Size != 3 {
		t.Errorf("PoolConfig = %+v", pc)
	}

	if bc := cfg.BatchConfig(nil); bc.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", bc.BatchSize)
	}

	lc := cfg.LoggingConfig(os.Stderr)
	if lc.Level != logging.LevelDebug || !lc.Pretty {
		t.Errorf("LoggingConfig = %+v", lc)
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		t.Fatalf("RedisOptions failed: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Errorf("RedisOptions = %s db %d", opts.Addr, opts.DB)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty) failed: %v", err)
	}
	if cfg.Pool.Size != Default().Pool.Size {
		t.Errorf("Pool.Size = %d, want default", cfg.Pool.Size)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("pool:\n  sessions: 3\n")); err == nil {
		t.Error("unknown field should be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "zero pool size", mutate: func(c *Config) { c.Pool.Size = 0 }, errMsg: "pool.size"},
		{name: "no driver", mutate: func(c *Config) { c.Pool.Driver = " " }, errMsg: "pool.driver"},
		{name: "bad wait state", mutate: func(c *Config) { c.Fetch.WaitUntil = "eventually" }, errMsg: "fetch.wait_until"},
		{name: "zero attempts", mutate: func(c *Config) { c.Fetch.MaxAttempts = 0 }, errMsg: "fetch.max_attempts"},
		{name: "negative backoff", mutate: func(c *Config) { c.Fetch.RetryBackoff = DurationFrom(-time.Second) }, errMsg: "fetch.retry_backoff"},
		{name: "zero batch", mutate: func(c *Config) { c.Batch.Size = 0 }, errMsg: "batch.size"},
		{name: "bad redis url", mutate: func(c *Config) { c.Cache.RedisURL = "http://nope" }, errMsg: "cache.redis_url"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, errMsg: "logging.level"},
		{name: "no port", mutate: func(c *Config) { c.Server.Port = "" }, errMsg: "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.errMsg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"RENDER_POOL_SIZE":    "8",
		"RENDER_DRIVER":       "chromedp",
		"RENDER_BROWSER":      "chrome",
		"RENDER_WAIT_UNTIL":   "load",
		"RENDER_MAX_ATTEMPTS": "3",
		"RENDER_BATCH_SIZE":   "20",
		"REDIS_URL":           "redis://cache:6379/0",
		"LOG_LEVEL":           "warn",
		"LOG_PRETTY":          "true",
		"PORT":                "9090",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Pool.Size != 8 || cfg.Pool.Driver != "chromedp" || cfg.Pool.Browser != "chrome" {
		t.Errorf("Pool = %+v", cfg.Pool)
	}
	if cfg.Fetch.WaitUntil != "load" || cfg.Fetch.MaxAttempts != 3 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Batch.Size != 20 || cfg.Cache.RedisURL != "redis://cache:6379/0" {
		t.Errorf("Batch/Cache = %+v/%+v", cfg.Batch, cfg.Cache)
	}
	if cfg.Logging.Level != "warn" || !cfg.Logging.Pretty || cfg.Server.Port != "9090" {
		t.Errorf("Logging/Server = %+v/%+v", cfg.Logging, cfg.Server)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"RENDER_POOL_SIZE":    "many",
		"RENDER_MAX_ATTEMPTS": "5x",
		"RENDER_BATCH_SIZE":   "1.5",
		"LOG_PRETTY":          "sometimes",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envMap(map[string]string{key: value}))
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("ApplyEnv(%s=%s) error = %v, want error naming the variable", key, value, err)
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	if err := os.WriteFile(path, []byte("pool:\n  size: 2\nbatch:\n  size: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RENDER_BATCH_SIZE", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pool.Size != 2 {
		t.Errorf("Pool.Size = %d, want 2 from file", cfg.Pool.Size)
	}
	if cfg.Batch.Size != 6 {
		t.Errorf("Batch.Size = %d, want 6 from env", cfg.Batch.Size)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file should fail")
	}
}

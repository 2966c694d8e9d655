// Command render-proxy serves rendered pages from a browser session pool over
// HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/render-pool/pkg/batch"
	"github.com/Sternrassler/render-pool/pkg/cache"
	"github.com/Sternrassler/render-pool/pkg/config"
	_ "github.com/Sternrassler/render-pool/pkg/engine/chromedp"
	_ "github.com/Sternrassler/render-pool/pkg/engine/playwright"
	"github.com/Sternrassler/render-pool/pkg/logging"
	"github.com/Sternrassler/render-pool/pkg/pool"
)

func main() {
	configPath := flag.String("config", getEnv("RENDER_CONFIG", ""), "path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(cfg.LoggingConfig(os.Stderr))
	logger := logging.NewLogger("render-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cfg.PoolConfig(nil), logger); err != nil {
		logger.Fatal().Err(err).Msg("Render proxy failed")
	}
}

// run serves until ctx ends. Redis is checked before any browser is
// launched, and the pool is closed on every path after it opened.
func run(ctx context.Context, cfg *config.Config, pc pool.Config, logger zerolog.Logger) error {
	var manager *cache.Manager

	opts, err := cfg.RedisOptions()
	if err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}
	if opts != nil {
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		manager = cache.NewManager(redisClient)
		if err := manager.Ping(ctx); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis, page cache enabled")
	}

	p, err := pool.Open(ctx, pc)
	if err != nil {
		return fmt.Errorf("open session pool: %w", err)
	}

	var fetcher batch.Fetcher = p
	if manager != nil {
		fetcher = cache.NewFetcher(p, manager, nil)
	}

	srv := newServer(p, fetcher, manager, cfg, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.routes(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Int("pool_size", p.Size()).
			Str("driver", cfg.Pool.Driver).
			Str("browser", cfg.Pool.Browser).
			Msg("Starting render proxy")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("serve: %w", err)
	}
	logger.Info().Msg("Shutting down render proxy")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	if err := p.Close(); err != nil {
		logger.Error().Err(err).Msg("Session pool close failed")
		return errors.Join(runErr, fmt.Errorf("close session pool: %w", err))
	}
	return runErr
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

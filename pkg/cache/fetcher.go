package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/render-pool/pkg/pool"
)

// Upstream renders pages on a cache miss. *pool.Pool implements it.
type Upstream interface {
	FetchContent(ctx context.Context, req pool.FetchRequest) (*pool.Page, error)
}

// defaulter is implemented by upstreams that fill empty request fields before
// rendering (*pool.Pool). Keys are built from the filled request so that an
// implicit and an explicit default share one entry.
type defaulter interface {
	WithDefaults(req pool.FetchRequest) pool.FetchRequest
}

// Fetcher serves rendered pages from the cache and falls back to Upstream.
type Fetcher struct {
	next   Upstream
	cache  *Manager
	logger zerolog.Logger
}

// NewFetcher wraps next with manager. logger may be nil.
func NewFetcher(next Upstream, manager *Manager, logger *zerolog.Logger) *Fetcher {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Fetcher{
		next:   next,
		cache:  manager,
		logger: l.With().Str("component", "render-cache").Logger(),
	}
}

// FetchContent returns the cached page for req or renders and stores it.
func (f *Fetcher) FetchContent(ctx context.Context, req pool.FetchRequest) (*pool.Page, error) {
	if d, ok := f.next.(defaulter); ok {
		req = d.WithDefaults(req)
	}
	key := Key{URL: req.URL, WaitUntil: req.WaitUntil, Selector: req.WaitForSelector}

	entry, err := f.cache.Get(ctx, key)
	switch {
	case err == nil:
		f.logger.Debug().Str("url", req.URL).Str("key", key.String()).Msg("Cache hit")
		return EntryToPage(entry), nil
	case !errors.Is(err, ErrCacheMiss):
		f.logger.Warn().Err(err).Str("url", req.URL).Msg("Cache lookup failed, rendering")
	}

	page, err := f.next.FetchContent(ctx, req)
	if err != nil {
		return nil, err
	}

	entry, reason, ok := PageToEntry(page, time.Now())
	if !ok {
		CacheSkipped.WithLabelValues(reason).Inc()
		f.logger.Debug().Str("url", req.URL).Str("reason", reason).Msg("Page not cacheable")
		return page, nil
	}

	if err := f.cache.Set(ctx, key, entry); err != nil {
		f.logger.Warn().Err(err).Str("url", req.URL).Msg("Cache store failed")
	}

	return page, nil
}

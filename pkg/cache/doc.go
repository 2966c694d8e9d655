// Package cache stores rendered pages in Redis so repeated fetches of the same
// URL skip the browser.
//
// Entries are keyed by URL, load condition and awaited selector, and expire
// according to the document's own caching headers:
//
//   - Cache-Control no-store (or max-age=0): not cached
//   - Cache-Control max-age: cached for that long
//   - Expires: cached until then
//   - otherwise: cached for DefaultTTL
//
// Only successful documents (status 2xx, or unknown status) are cached.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	fetcher := cache.NewFetcher(p, manager, nil)
//	page, err := fetcher.FetchContent(ctx, pool.FetchRequest{URL: url})
//	if page.FromCache {
//		// served from Redis, no session was used
//	}
//
// Fetcher implements the same FetchContent method as *pool.Pool and can be
// handed to a batch.Orchestrator. Cache failures are logged and never fail a
// fetch.
//
// # Metrics
//
//   - render_cache_hits_total - Cache hits
//   - render_cache_misses_total - Cache misses
//   - render_cache_stored_bytes_total - Bytes written to Redis
//   - render_cache_skipped_total{reason} - Pages not stored
//   - render_cache_errors_total{operation} - Cache operation errors
package cache

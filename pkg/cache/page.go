package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/render-pool/pkg/engine"
	"github.com/Sternrassler/render-pool/pkg/pool"
)

const (
	// DefaultTTL is the fallback TTL when the document sends no caching headers
	DefaultTTL = 5 * time.Minute
)

// ExpiresFromHeaders derives the expiry of a document from its response
// headers. It returns false when the document must not be cached.
// Cache-Control max-age takes precedence over Expires.
func ExpiresFromHeaders(resp *engine.Response, now time.Time) (time.Time, bool) {
	if cc := resp.Header("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(name) {
			case "no-store":
				return time.Time{}, false
			case "max-age":
				seconds, err := strconv.Atoi(strings.Trim(value, `"`))
				if err != nil {
					continue
				}
				if seconds <= 0 {
					return time.Time{}, false
				}
				return now.Add(time.Duration(seconds) * time.Second), true
			}
		}
	}

	if raw := resp.Header("Expires"); raw != "" {
		expires, err := http.ParseTime(raw)
		if err != nil {
			// Invalid dates (e.g. "0") mean already expired.
			return time.Time{}, false
		}
		if !expires.After(now) {
			return time.Time{}, false
		}
		return expires, true
	}

	return now.Add(DefaultTTL), true
}

// PageToEntry converts a rendered page to a cache entry. When the page must
// not be cached it returns the reason ("empty", "status" or "headers") and
// false.
func PageToEntry(page *pool.Page, now time.Time) (*Entry, string, bool) {
	if page == nil {
		return nil, "empty", false
	}

	resp := page.Response
	if resp == nil {
		resp = &engine.Response{URL: page.URL}
	}
	if resp.Status != 0 && (resp.Status < 200 || resp.Status > 299) {
		return nil, "status", false
	}

	expires, ok := ExpiresFromHeaders(resp, now)
	if !ok {
		return nil, "headers", false
	}

	return &Entry{
		URL:        page.URL,
		FinalURL:   resp.URL,
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Headers:    resp.Headers,
		Content:    page.Content,
		Expires:    expires,
		CachedAt:   now,
	}, "", true
}

// EntryToPage rebuilds a page from a cache entry.
func EntryToPage(entry *Entry) *pool.Page {
	return &pool.Page{
		URL: entry.URL,
		Response: &engine.Response{
			URL:        entry.FinalURL,
			Status:     entry.Status,
			StatusText: entry.StatusText,
			Headers:    entry.Headers,
		},
		Content:   entry.Content,
		FetchedAt: entry.CachedAt,
		FromCache: true,
	}
}

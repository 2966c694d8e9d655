package cache

import (
	"net/url"
	"strings"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// Key identifies one cached rendering. The same URL rendered with a different
// load condition or selector is a different entry.
type Key struct {
	URL       string
	WaitUntil engine.LoadState
	Selector  string
}

// String generates a deterministic cache key string.
// Format: render:<normalized url>[:wait=<state>][:sel=<selector>]
//
// Example:
//
//	render:https://example.com/list?a=1&b=2:wait=networkidle
func (k Key) String() string {
	parts := []string{"render", normalizeURL(k.URL)}

	if k.WaitUntil != "" {
		parts = append(parts, "wait="+string(k.WaitUntil))
	}
	if k.Selector != "" {
		parts = append(parts, "sel="+k.Selector)
	}

	return strings.Join(parts, ":")
}

// normalizeURL lower-cases scheme and host, sorts the query and drops the
// fragment. Unparseable URLs are used verbatim.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	// Encode sorts by key.
	u.RawQuery = u.Query().Encode()

	return u.String()
}

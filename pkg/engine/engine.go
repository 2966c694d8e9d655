// Package engine defines the browser automation capability set consumed by the
// session pool, plus a registry of drivers selectable by name.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownDriver is returned when no driver is registered under the requested name.
	ErrUnknownDriver = errors.New("unknown engine driver")

	// ErrUnknownLoadState is returned when a load state token cannot be parsed.
	ErrUnknownLoadState = errors.New("unknown load state")
)

// LoadState is the page lifecycle condition to wait for after navigation.
type LoadState string

const (
	// LoadStateLoad waits for the load event.
	LoadStateLoad LoadState = "load"

	// LoadStateDOMContentLoaded waits until the document has been parsed.
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"

	// LoadStateNetworkIdle waits until there is no pending network activity.
	LoadStateNetworkIdle LoadState = "networkidle"
)

// ParseLoadState converts a configuration token into a LoadState.
// The empty string maps to LoadStateDOMContentLoaded.
func ParseLoadState(s string) (LoadState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "domcontentloaded", "dom":
		return LoadStateDOMContentLoaded, nil
	case "load":
		return LoadStateLoad, nil
	case "networkidle", "network_idle":
		return LoadStateNetworkIdle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLoadState, s)
	}
}

// Options are opaque launch options passed through to the driver unmodified.
type Options map[string]any

// Response is the metadata of the main document response.
type Response struct {
	URL        string            `json:"url"`
	Status     int               `json:"status"`
	StatusText string            `json:"status_text,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Header returns a response header value, matching the name case-insensitively.
func (r *Response) Header(name string) string {
	if r == nil {
		return ""
	}
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Handle is one live browsing context (browser + page) owned by a single session.
// A Handle is never used by two goroutines at once; the pool guarantees that.
type Handle interface {
	// ID uniquely identifies this handle. A relaunched session gets a new ID.
	ID() string

	// Navigate loads url and returns the main document response.
	Navigate(ctx context.Context, url string) (*Response, error)

	// WaitForLoad blocks until the page reaches state.
	WaitForLoad(ctx context.Context, state LoadState) error

	// WaitForSelector blocks until an element matching the CSS selector is attached.
	WaitForSelector(ctx context.Context, selector string) error

	// Content returns the fully rendered document HTML.
	Content(ctx context.Context) (string, error)

	// Close releases the browser resources behind the handle.
	Close() error
}

// Engine launches handles. Launch must be safe for concurrent use.
type Engine interface {
	// Name returns the driver identifier (e.g. "playwright", "chromedp").
	Name() string

	// Launch starts a new browser with its own browsing context.
	Launch(ctx context.Context, opts Options) (Handle, error)

	// Close releases the shared engine connection.
	Close() error
}

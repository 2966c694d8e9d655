package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// ErrInjected is the error returned by injected navigation failures.
var ErrInjected = errors.New("injected failure")

// ErrHandleClosed is returned when a closed fake handle is used.
var ErrHandleClosed = errors.New("handle closed")

// FakeEngine is an in-memory engine.Engine with failure injection. Without a
// client it renders a generated article per URL; with one it fetches the URL
// over HTTP (e.g. from a MockSite).
type FakeEngine struct {
	// Client, when set, fetches navigated URLs over HTTP.
	Client *http.Client

	// NavigateDelay is slept (context-aware) inside every Navigate.
	NavigateDelay time.Duration

	mu           sync.Mutex
	launches     int
	launchHook   func(n int) error
	urlFailures  map[string]int
	anyFailures  int
	missingSel   map[string]bool
	navigations  map[string]int
	handles      []*FakeHandle
	closed       bool
	active       int
	maxActive    int
	overlaps     int
	closeHandles int
}

// NewFakeEngine creates an empty fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		urlFailures: make(map[string]int),
		missingSel:  make(map[string]bool),
		navigations: make(map[string]int),
	}
}

// Name implements engine.Engine.
func (f *FakeEngine) Name() string { return "fake" }

// SetLaunchHook installs a hook called with the 1-based launch number; a
// non-nil return fails that launch.
func (f *FakeEngine) SetLaunchHook(hook func(n int) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launchHook = hook
}

// FailURL makes the next n navigations to url fail.
func (f *FakeEngine) FailURL(url string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urlFailures[url] += n
}

// FailAny makes the next n navigations fail regardless of URL.
func (f *FakeEngine) FailAny(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anyFailures += n
}

// MissingSelector makes WaitForSelector(selector) fail on every handle.
func (f *FakeEngine) MissingSelector(selector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missingSel[selector] = true
}

// Launch implements engine.Engine.
func (f *FakeEngine) Launch(ctx context.Context, opts engine.Options) (engine.Handle, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errors.New("engine closed")
	}
	f.launches++
	n := f.launches
	hook := f.launchHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(n); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := &FakeHandle{id: uuid.NewString(), engine: f, options: opts}

	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

// Close implements engine.Engine.
func (f *FakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeEngine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Launches returns the number of Launch calls.
func (f *FakeEngine) Launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// OpenHandles returns the number of launched handles not yet closed.
func (f *FakeEngine) OpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles) - f.closeHandles
}

// Navigations returns how often url was navigated to.
func (f *FakeEngine) Navigations(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navigations[url]
}

// MaxActive returns the highest number of concurrent navigations observed.
func (f *FakeEngine) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// Overlaps returns how often a handle was navigated while already in use.
func (f *FakeEngine) Overlaps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

func (f *FakeEngine) begin(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.navigations[url]++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}

	if f.anyFailures > 0 {
		f.anyFailures--
		return fmt.Errorf("%w: navigate %s", ErrInjected, url)
	}
	if f.urlFailures[url] > 0 {
		f.urlFailures[url]--
		return fmt.Errorf("%w: navigate %s", ErrInjected, url)
	}
	return nil
}

func (f *FakeEngine) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
}

// FakeHandle is one fake browsing context.
type FakeHandle struct {
	id      string
	engine  *FakeEngine
	options engine.Options

	inUse   atomic.Bool
	closed  atomic.Bool
	mu      sync.Mutex
	content string
}

// ID implements engine.Handle.
func (h *FakeHandle) ID() string { return h.id }

// Options returns the launch options the handle was created with.
func (h *FakeHandle) Options() engine.Options { return h.options }

// Navigate implements engine.Handle.
func (h *FakeHandle) Navigate(ctx context.Context, url string) (*engine.Response, error) {
	if h.closed.Load() {
		return nil, ErrHandleClosed
	}
	if h.inUse.Swap(true) {
		h.engine.mu.Lock()
		h.engine.overlaps++
		h.engine.mu.Unlock()
	}
	defer h.inUse.Store(false)

	err := h.engine.begin(url)
	defer h.engine.end()

	if delay := h.engine.NavigateDelay; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	if h.engine.Client != nil {
		return h.fetch(ctx, url)
	}

	h.mu.Lock()
	h.content = ArticleHTML(url, "rendered by "+h.id)
	h.mu.Unlock()

	return &engine.Response{
		URL:        url,
		Status:     http.StatusOK,
		StatusText: "OK",
		Headers:    map[string]string{"content-type": "text/html"},
	}, nil
}

func (h *FakeHandle) fetch(ctx context.Context, url string) (*engine.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.engine.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.content = string(body)
	h.mu.Unlock()

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return &engine.Response{
		URL:        resp.Request.URL.String(),
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
	}, nil
}

// WaitForLoad implements engine.Handle.
func (h *FakeHandle) WaitForLoad(ctx context.Context, state engine.LoadState) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	return ctx.Err()
}

// WaitForSelector implements engine.Handle.
func (h *FakeHandle) WaitForSelector(ctx context.Context, selector string) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	h.engine.mu.Lock()
	missing := h.engine.missingSel[selector]
	h.engine.mu.Unlock()
	if missing {
		return fmt.Errorf("%w: selector %q not found", ErrInjected, selector)
	}
	return ctx.Err()
}

// Content implements engine.Handle.
func (h *FakeHandle) Content(ctx context.Context) (string, error) {
	if h.closed.Load() {
		return "", ErrHandleClosed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content, nil
}

// Close implements engine.Handle.
func (h *FakeHandle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.engine.mu.Lock()
	h.engine.closeHandles++
	h.engine.mu.Unlock()
	return nil
}

// Closed reports whether the handle was closed.
func (h *FakeHandle) Closed() bool {
	return h.closed.Load()
}

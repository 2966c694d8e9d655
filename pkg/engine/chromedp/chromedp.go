// Package chromedp implements the engine capability set on top of chromedp.
// Importing it registers the "chromedp" driver. Every handle owns its own
// Chrome process; launch options are passed to Chrome as command line flags.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// DriverName is the registry name of this driver.
const DriverName = "chromedp"

// networkIdleQuiet is how long the page must stay complete before it counts as idle.
const networkIdleQuiet = 500 * time.Millisecond

func init() {
	engine.Register(DriverName, func(ctx context.Context, browser string) (engine.Engine, error) {
		return New(browser)
	})
}

// Engine launches one Chrome process per handle.
type Engine struct {
	execPath string
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecPath runs the Chrome binary at path instead of searching PATH.
func WithExecPath(path string) Option {
	return func(e *Engine) { e.execPath = path }
}

// New returns a chromedp engine. Only Chrome-family browsers are supported.
func New(browser string, opts ...Option) (*Engine, error) {
	switch browser {
	case "", "chrome", "chromium":
	default:
		return nil, fmt.Errorf("chromedp supports chrome only, got %q", browser)
	}
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return DriverName }

// Launch starts Chrome and opens a tab. opts become Chrome flags. ctx bounds
// the start-up only; the browser lives until the handle is closed.
func (e *Engine) Launch(ctx context.Context, opts engine.Options) (engine.Handle, error) {
	allocOpts := allocatorOptions(opts)
	if e.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	h := &Handle{
		id:          uuid.NewString(),
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	// The first Run starts the browser process under the context it is given,
	// so it must run on the tab context itself. ctx only arms a watchdog.
	expired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(expired)
		allocCancel()
	})

	err := chromedp.Run(tabCtx)
	if !stop() {
		<-expired
		h.Close()
		return nil, fmt.Errorf("start chrome: %w", ctx.Err())
	}
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return h, nil
}

// Close implements engine.Engine. chromedp keeps no shared connection.
func (e *Engine) Close() error { return nil }

// Handle is one Chrome process with a single tab.
type Handle struct {
	id          string
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// ID implements engine.Handle.
func (h *Handle) ID() string { return h.id }

// scope derives a context from the tab that also ends when ctx ends.
func (h *Handle) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(h.tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(h.tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Navigate implements engine.Handle.
func (h *Handle) Navigate(ctx context.Context, url string) (*engine.Response, error) {
	runCtx, cancel := h.scope(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if resp == nil {
		return &engine.Response{URL: url}, nil
	}
	return convertResponse(resp), nil
}

// WaitForLoad implements engine.Handle. Navigate already waits for the load
// event, so this only checks document.readyState; network idle is approximated
// by a short quiet period after the document completes.
func (h *Handle) WaitForLoad(ctx context.Context, state engine.LoadState) error {
	runCtx, cancel := h.scope(ctx)
	defer cancel()

	accept := map[string]bool{"complete": true}
	if state == engine.LoadStateDOMContentLoaded {
		accept["interactive"] = true
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		var readyState string
		if err := chromedp.Run(runCtx, chromedp.Evaluate(`document.readyState`, &readyState)); err != nil {
			return fmt.Errorf("wait for load state %s: %w", state, err)
		}
		if accept[readyState] {
			break
		}
		select {
		case <-ticker.C:
		case <-runCtx.Done():
			return fmt.Errorf("wait for load state %s: %w", state, runCtx.Err())
		}
	}

	if state == engine.LoadStateNetworkIdle {
		if err := chromedp.Run(runCtx, chromedp.Sleep(networkIdleQuiet)); err != nil {
			return fmt.Errorf("wait for load state %s: %w", state, err)
		}
	}
	return nil
}

// WaitForSelector implements engine.Handle.
func (h *Handle) WaitForSelector(ctx context.Context, selector string) error {
	runCtx, cancel := h.scope(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for selector %q: %w", selector, err)
	}
	return nil
}

// Content implements engine.Handle.
func (h *Handle) Content(ctx context.Context) (string, error) {
	runCtx, cancel := h.scope(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// Close implements engine.Handle. It closes the tab and kills the browser
// process. Later calls return the first result.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		err := chromedp.Cancel(h.tabCtx)
		h.tabCancel()
		h.allocCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			h.closeErr = fmt.Errorf("close chrome: %w", err)
		}
	})
	return h.closeErr
}

func allocatorOptions(opts engine.Options) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		allocOpts = append(allocOpts, chromedp.Flag(name, opts[name]))
	}
	return allocOpts
}

func convertResponse(resp *network.Response) *engine.Response {
	headers := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[k] = fmt.Sprint(v)
	}
	return &engine.Response{
		URL:        resp.URL,
		Status:     int(resp.Status),
		StatusText: resp.StatusText,
		Headers:    headers,
	}
}

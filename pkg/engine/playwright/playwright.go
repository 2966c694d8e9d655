// Package playwright implements the engine capability set on top of
// playwright-go. Importing it registers the "playwright" driver.
package playwright

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// DriverName is the registry name of this driver.
const DriverName = "playwright"

func init() {
	engine.Register(DriverName, func(ctx context.Context, browser string) (engine.Engine, error) {
		return New(browser, DefaultConfig())
	})
}

// Config controls how the Playwright driver process is started.
type Config struct {
	// Install downloads the driver and the requested browser before running.
	Install bool

	// Verbose enables driver installation output on Output.
	Verbose bool

	// Output receives driver output (default: discarded).
	Output io.Writer
}

// DefaultConfig returns the configuration used by the registered driver.
func DefaultConfig() Config {
	return Config{
		Install: true,
		Verbose: false,
		Output:  io.Discard,
	}
}

// Engine is a running Playwright driver bound to one browser type.
type Engine struct {
	pw          *playwright.Playwright
	browserType playwright.BrowserType
	browser     string
}

// New starts the Playwright driver for browser ("chromium", "firefox" or "webkit").
func New(browser string, cfg Config) (*Engine, error) {
	if browser == "" {
		browser = "chromium"
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{browser},
		Verbose:  cfg.Verbose,
		Stdout:   cfg.Output,
		Stderr:   cfg.Output,
	}

	if cfg.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("run playwright: %w", err)
	}

	var bt playwright.BrowserType
	switch browser {
	case "chromium":
		bt = pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("unsupported browser type %q", browser)
	}

	return &Engine{pw: pw, browserType: bt, browser: browser}, nil
}

// Name implements engine.Engine.
func (e *Engine) Name() string {
	return DriverName + ":" + e.browser
}

// Launch starts a browser, a fresh context and a page inside it.
// opts are decoded into playwright.BrowserTypeLaunchOptions as-is.
func (e *Engine) Launch(ctx context.Context, opts engine.Options) (engine.Handle, error) {
	launchOpts, err := launchOptions(opts)
	if err != nil {
		return nil, err
	}
	if launchOpts.Timeout == nil {
		launchOpts.Timeout = timeoutFrom(ctx)
	}

	browser, err := e.browserType.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	bctx, err := browser.NewContext()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	return &Handle{
		id:      uuid.NewString(),
		browser: browser,
		context: bctx,
		page:    page,
	}, nil
}

// Close stops the Playwright driver.
func (e *Engine) Close() error {
	if err := e.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

// Handle is one Playwright browser with a single page.
type Handle struct {
	id      string
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// ID implements engine.Handle.
func (h *Handle) ID() string { return h.id }

// Navigate implements engine.Handle.
func (h *Handle) Navigate(ctx context.Context, url string) (*engine.Response, error) {
	resp, err := h.page.Goto(url, playwright.PageGotoOptions{
		Timeout: timeoutFrom(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	// Goto returns no response for same-document navigations.
	if resp == nil {
		return &engine.Response{URL: h.page.URL()}, nil
	}

	headers, err := resp.AllHeaders()
	if err != nil {
		headers = resp.Headers()
	}

	return &engine.Response{
		URL:        resp.URL(),
		Status:     resp.Status(),
		StatusText: resp.StatusText(),
		Headers:    headers,
	}, nil
}

// WaitForLoad implements engine.Handle.
func (h *Handle) WaitForLoad(ctx context.Context, state engine.LoadState) error {
	ls := playwright.LoadState(state)
	err := h.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &ls,
		Timeout: timeoutFrom(ctx),
	})
	if err != nil {
		return fmt.Errorf("wait for load state %s: %w", state, err)
	}
	return nil
}

// WaitForSelector implements engine.Handle.
func (h *Handle) WaitForSelector(ctx context.Context, selector string) error {
	_, err := h.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: timeoutFrom(ctx),
	})
	if err != nil {
		return fmt.Errorf("wait for selector %q: %w", selector, err)
	}
	return nil
}

// Content implements engine.Handle.
func (h *Handle) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := h.page.Content()
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return content, nil
}

// Close implements engine.Handle. Every resource is closed even if one fails.
func (h *Handle) Close() error {
	return errors.Join(
		h.page.Close(),
		h.context.Close(),
		h.browser.Close(),
	)
}

func launchOptions(opts engine.Options) (playwright.BrowserTypeLaunchOptions, error) {
	var launchOpts playwright.BrowserTypeLaunchOptions
	if len(opts) == 0 {
		return launchOpts, nil
	}

	raw, err := json.Marshal(opts)
	if err != nil {
		return launchOpts, fmt.Errorf("encode launch options: %w", err)
	}
	if err := json.Unmarshal(raw, &launchOpts); err != nil {
		return launchOpts, fmt.Errorf("decode launch options: %w", err)
	}
	return launchOpts, nil
}

// timeoutFrom converts a context deadline into a Playwright timeout in milliseconds.
// Nil keeps Playwright's default.
func timeoutFrom(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return &ms
}

package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// FetchRequest describes one URL to render.
type FetchRequest struct {
	URL string

	// WaitUntil is the load state to wait for after navigation
	// (default: the pool's WaitUntil).
	WaitUntil engine.LoadState

	// WaitForSelector, when set, is awaited before the content is extracted
	// (default: the pool's WaitForSelector).
	WaitForSelector string
}

// Page is a rendered document together with its response metadata.
type Page struct {
	URL       string           `json:"url"`
	Response  *engine.Response `json:"response"`
	Content   string           `json:"content"`
	Session   string           `json:"session,omitempty"`
	HandleID  string           `json:"handle_id,omitempty"`
	Attempts  int              `json:"attempts"`
	FetchedAt time.Time        `json:"fetched_at"`
	Duration  time.Duration    `json:"duration"`
	FromCache bool             `json:"from_cache,omitempty"`
}

// FetchContent renders req.URL on whichever session is free. Any failure while
// navigating, waiting or extracting marks the session broken: it is relaunched
// in place and the whole fetch is retried, up to MaxAttempts attempts in total.
// When every attempt fails a *FetchExhaustedError carrying the last failure is
// returned. Context cancellation and pool closure end the fetch immediately.
func (p *Pool) FetchContent(ctx context.Context, req FetchRequest) (*Page, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	req = p.WithDefaults(req)

	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	logger := p.logger.With().Str("url", req.URL).Logger()

	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			fetchRetriesTotal.Inc()
			if err := sleepBackoff(ctx, backoff); err != nil {
				fetchTotal.WithLabelValues("aborted").Inc()
				return nil, err
			}
			backoff = nextBackoff(backoff, p.cfg.MaxBackoff)
		}

		logger.Debug().Int("attempt", attempt).Msg("Looking for idle session")
		lease, err := p.Acquire(ctx)
		if err != nil {
			var broken *SessionBrokenError
			if errors.As(err, &broken) {
				broken.Attempt = attempt
				lastErr = broken
				continue
			}
			fetchTotal.WithLabelValues("aborted").Inc()
			return nil, err
		}

		page, err := p.render(ctx, lease, req)
		if err == nil {
			page.Attempts = attempt
			page.Duration = time.Since(start)
			_ = p.Release(lease)

			fetchTotal.WithLabelValues("ok").Inc()
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Str("session", page.Session).
					Msg("Fetch succeeded after retry")
			}
			return page, nil
		}

		// A cancelled caller says nothing about the session's health.
		if ctx.Err() != nil {
			_ = p.Release(lease)
			fetchTotal.WithLabelValues("aborted").Inc()
			return nil, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
		}

		lastErr = &SessionBrokenError{Session: lease.Session(), Attempt: attempt, Err: err}
		lease.session.recordFailure(err)

		logger.Warn().
			Err(err).
			Str("session", lease.Session()).
			Int("attempt", attempt).
			Int("max_attempts", p.cfg.MaxAttempts).
			Msg("Session failed, relaunching")

		if rerr := p.Recreate(ctx, lease); rerr != nil {
			logger.Warn().Err(rerr).Str("session", lease.Session()).Msg("Relaunch failed, session left broken")
		}
		_ = p.Release(lease)
	}

	fetchExhaustedTotal.Inc()
	fetchTotal.WithLabelValues("exhausted").Inc()
	logger.Error().
		Err(lastErr).
		Int("max_attempts", p.cfg.MaxAttempts).
		Msg("Fetch attempts exhausted")

	return nil, &FetchExhaustedError{URL: req.URL, Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

// WithDefaults returns req with empty wait conditions replaced by the pool's
// defaults, exactly as FetchContent renders it.
func (p *Pool) WithDefaults(req FetchRequest) FetchRequest {
	if req.WaitUntil == "" {
		req.WaitUntil = p.cfg.WaitUntil
	}
	if req.WaitForSelector == "" {
		req.WaitForSelector = p.cfg.WaitForSelector
	}
	return req
}

// render drives one attempt on the leased session.
func (p *Pool) render(ctx context.Context, lease *Lease, req FetchRequest) (*Page, error) {
	h := lease.Handle()
	if h == nil {
		return nil, fmt.Errorf("session %s has no handle", lease.Session())
	}

	if p.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.NavigationTimeout)
		defer cancel()
	}

	resp, err := h.Navigate(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if err := h.WaitForLoad(ctx, req.WaitUntil); err != nil {
		return nil, err
	}
	if req.WaitForSelector != "" {
		if err := h.WaitForSelector(ctx, req.WaitForSelector); err != nil {
			return nil, err
		}
	}
	content, err := h.Content(ctx)
	if err != nil {
		return nil, err
	}

	return &Page{
		URL:       req.URL,
		Response:  resp,
		Content:   content,
		Session:   lease.Session(),
		HandleID:  h.ID(),
		FetchedAt: time.Now(),
	}, nil
}

func (s *session) recordFailure(err error) {
	s.mu.Lock()
	s.lastFailure = err.Error()
	s.mu.Unlock()
}

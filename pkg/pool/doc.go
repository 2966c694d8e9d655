// Package pool manages a fixed-size pool of browser automation sessions and
// renders URLs through whichever session is free.
//
// Each session owns one engine.Handle (a browser with a single page). Sessions
// keep their name and slot for the lifetime of the pool; when a session breaks
// mid-fetch its handle is closed and relaunched in place.
//
// # Basic Usage
//
//	cfg := pool.DefaultConfig()
//	cfg.Size = 3
//	p, err := pool.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	page, err := p.FetchContent(ctx, pool.FetchRequest{
//		URL:             "https://example.com/",
//		WaitForSelector: "h1",
//	})
//
// # Leases
//
// Acquire hands out a Lease on an idle session and blocks while every session
// is busy. Every lease must be released exactly once:
//
//	lease, err := p.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer lease.Release()
//
// Sessions are not handed out in FIFO order. Idle sessions are passed through
// a buffered channel, so waiting callers never poll.
//
// # Recovery
//
// FetchContent treats any navigation, wait or extraction failure as a broken
// session: the session is relaunched before it is returned to the pool and the
// whole fetch is retried, up to Config.MaxAttempts (default 5) attempts. Only
// exhaustion is surfaced, as a *FetchExhaustedError.
//
// # Session States
//
//	starting -> idle <-> busy -> recovering -> busy
//	                                        -> broken -> (next Acquire) recovering
//	any -> closed
//
// # Limitations
//
// Closing the pool with outstanding leases is refused with a
// *ShutdownMisuseError. In-flight navigations are only interrupted as far as
// the engine honours context deadlines.
//
// # Metrics
//
//   - render_pool_sessions_busy - Sessions held by a lease
//   - render_pool_acquire_wait_seconds - Time waiting for an idle session
//   - render_fetch_total{status} - Fetches by outcome (ok, exhausted, aborted)
//   - render_fetch_duration_seconds - Fetch duration including retries
//   - render_fetch_retries_total - Attempts after the first
//   - render_fetch_exhausted_total - Fetches that exhausted every attempt
//   - render_session_recreations_total{result} - Relaunches by result (ok, failed)
package pool

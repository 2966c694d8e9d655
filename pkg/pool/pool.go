package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// Pool is a fixed-size set of browser sessions. Idle sessions travel through
// a buffered channel; receiving from it is the only way to obtain a lease, so
// no two callers ever hold the same session.
type Pool struct {
	cfg      Config
	engine   engine.Engine
	logger   zerolog.Logger
	sessions []*session
	idle     chan *session

	// recreating serializes relaunches per slot.
	recreating []sync.Mutex

	mu          sync.Mutex
	closed      bool
	outstanding int
	done        chan struct{}
}

// Open launches cfg.Size sessions concurrently and blocks until all of them
// are ready. If any launch fails, every launched session and the engine are
// closed and a *StartupError is returned.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	logger := cfg.logger()

	if err := cfg.validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid pool configuration")
		return nil, &StartupError{Slot: -1, Err: err}
	}

	eng := cfg.Engine
	if eng == nil {
		var err error
		eng, err = engine.Start(ctx, cfg.Driver, cfg.Browser)
		if err != nil {
			logger.Error().Err(err).Str("driver", cfg.Driver).Msg("Engine start failed")
			return nil, &StartupError{Slot: -1, Err: err}
		}
	}

	p := &Pool{
		cfg:        cfg,
		engine:     eng,
		logger:     logger,
		sessions:   make([]*session, cfg.Size),
		idle:       make(chan *session, cfg.Size),
		recreating: make([]sync.Mutex, cfg.Size),
		done:       make(chan struct{}),
	}
	for i := range p.sessions {
		p.sessions[i] = newSession(i)
	}

	logger.Info().
		Int("size", cfg.Size).
		Str("engine", eng.Name()).
		Interface("launch_options", cfg.LaunchOptions).
		Msg("Opening session pool")

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range p.sessions {
		g.Go(func() error {
			logger.Debug().Str("session", s.name).Msg("Starting session")

			h, err := p.launch(gctx)
			if err != nil {
				return &StartupError{Slot: s.index, Err: err}
			}

			s.mu.Lock()
			s.install(h)
			s.state = StateIdle
			s.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Session pool startup failed, tearing down")
		if terr := p.teardown(); terr != nil {
			logger.Warn().Err(terr).Msg("Teardown after failed startup reported errors")
		}
		return nil, err
	}

	for _, s := range p.sessions {
		p.idle <- s
	}

	logger.Info().
		Int("size", cfg.Size).
		Dur("duration", time.Since(start)).
		Msg("Session pool ready")

	return p, nil
}

// launch starts one handle, bounded by LaunchTimeout.
func (p *Pool) launch(ctx context.Context) (engine.Handle, error) {
	if p.cfg.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.LaunchTimeout)
		defer cancel()
	}
	return p.engine.Launch(ctx, p.cfg.LaunchOptions)
}

// Acquire returns a lease on an idle session, waiting until one is available.
// Sessions are handed out in no particular order. A session whose last
// relaunch failed is relaunched before it is handed out; if that fails again
// the session goes back to the pool and a *SessionBrokenError is returned.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()

	var s *session
	select {
	case s = <-p.idle:
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.idle <- s
		return nil, ErrPoolClosed
	}
	p.outstanding++
	p.mu.Unlock()

	poolAcquireWaitSeconds.Observe(time.Since(start).Seconds())
	poolSessionsBusy.Inc()

	s.mu.Lock()
	broken := s.state == StateBroken
	s.state = StateBusy
	s.leasedAt = time.Now()
	s.mu.Unlock()

	lease := &Lease{pool: p, session: s}

	if broken {
		p.logger.Info().Str("session", s.name).Msg("Relaunching broken session before use")
		if err := p.Recreate(ctx, lease); err != nil {
			_ = p.Release(lease)
			return nil, err
		}
	}

	p.logger.Debug().
		Str("session", s.name).
		Dur("wait", time.Since(start)).
		Msg("Session acquired")

	return lease, nil
}

// Release marks the leased session idle and makes it available to the next
// Acquire. Releasing the same lease twice returns ErrLeaseReleased.
func (p *Pool) Release(lease *Lease) error {
	if lease == nil || lease.pool != p {
		return fmt.Errorf("release: lease does not belong to this pool")
	}
	if !lease.released.CompareAndSwap(false, true) {
		return ErrLeaseReleased
	}

	s := lease.session
	s.mu.Lock()
	if s.state != StateBroken {
		s.state = StateIdle
	}
	s.leasedAt = time.Time{}
	s.mu.Unlock()

	poolSessionsBusy.Dec()

	p.mu.Lock()
	p.outstanding--
	p.mu.Unlock()

	p.idle <- s

	p.logger.Debug().Str("session", s.name).Msg("Session released")
	return nil
}

// Recreate closes the leased session's handle and launches a replacement in
// the same slot. The session stays leased by the caller. If the relaunch
// fails the session is marked broken and a *SessionBrokenError is returned;
// the next Acquire of that session retries the relaunch.
func (p *Pool) Recreate(ctx context.Context, lease *Lease) error {
	if lease == nil || lease.pool != p {
		return fmt.Errorf("recreate: lease does not belong to this pool")
	}
	if lease.released.Load() {
		return ErrLeaseReleased
	}

	s := lease.session
	p.recreating[s.index].Lock()
	defer p.recreating[s.index].Unlock()

	s.mu.Lock()
	s.state = StateRecovering
	old := s.handle
	s.handle = nil
	s.mu.Unlock()

	logger := p.logger.With().Str("session", s.name).Logger()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Debug().Err(err).Str("handle", old.ID()).Msg("Closing broken handle failed")
		}
	}

	h, err := p.launch(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateBroken
		s.lastFailure = err.Error()
		s.mu.Unlock()

		sessionRecreationsTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("Session relaunch failed")
		return &SessionBrokenError{Session: s.name, Err: fmt.Errorf("relaunch: %w", err)}
	}

	s.mu.Lock()
	s.install(h)
	s.recreations++
	s.state = StateBusy
	generation := s.generation
	s.mu.Unlock()

	sessionRecreationsTotal.WithLabelValues("ok").Inc()
	logger.Info().
		Str("handle", h.ID()).
		Int("generation", generation).
		Msg("Session relaunched")

	return nil
}

// Close closes every session and the engine. Close refuses to run while
// leases are outstanding: it returns a *ShutdownMisuseError and leaves the
// pool untouched. Pending and later Acquire calls return ErrPoolClosed.
// Closing a closed pool is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if p.outstanding > 0 {
		n := p.outstanding
		p.mu.Unlock()
		p.logger.Warn().Int("outstanding", n).Msg("Refusing to close pool with outstanding leases")
		return &ShutdownMisuseError{Outstanding: n}
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.logger.Debug().Msg("Closing session pool and all attached browsers")
	return p.teardown()
}

// teardown closes all installed handles and the engine.
func (p *Pool) teardown() error {
	var errs []error
	for _, s := range p.sessions {
		s.mu.Lock()
		if s.handle != nil {
			if err := s.handle.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.name, err))
			}
			s.handle = nil
		}
		s.state = StateClosed
		s.mu.Unlock()
	}
	if err := p.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	return errors.Join(errs...)
}

// Size returns the number of sessions in the pool.
func (p *Pool) Size() int {
	return len(p.sessions)
}

// Sessions returns a snapshot of every session, ordered by slot.
func (p *Pool) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, len(p.sessions))
	for _, s := range p.sessions {
		infos = append(infos, s.info())
	}
	return infos
}

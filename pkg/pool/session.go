package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateStarting is the state while the first launch is in progress.
	StateStarting State = iota

	// StateIdle sessions sit in the idle channel waiting for a lease.
	StateIdle

	// StateBusy sessions are held by exactly one lease.
	StateBusy

	// StateRecovering sessions are being relaunched by their lease holder.
	StateRecovering

	// StateBroken sessions failed to relaunch; the next acquirer relaunches them
	// before use.
	StateBroken

	// StateClosed sessions belong to a closed pool.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateRecovering:
		return "recovering"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// session is one pool slot. Its name and index never change; the handle is
// replaced on recreation. mu serializes state and handle mutation.
type session struct {
	name  string
	index int

	mu          sync.Mutex
	state       State
	handle      engine.Handle
	createdAt   time.Time
	generation  int
	leasedAt    time.Time
	recreations int
	lastFailure string
}

func newSession(index int) *session {
	return &session{
		name:  fmt.Sprintf("session-%d", index),
		index: index,
		state: StateStarting,
	}
}

// install puts a freshly launched handle in place. Caller holds s.mu.
func (s *session) install(h engine.Handle) {
	s.handle = h
	s.createdAt = time.Now()
	s.generation++
}

// SessionInfo is a diagnostics snapshot of one session.
type SessionInfo struct {
	Name        string    `json:"name"`
	Index       int       `json:"index"`
	State       string    `json:"state"`
	HandleID    string    `json:"handle_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Generation  int       `json:"generation"`
	Recreations int       `json:"recreations"`
	LeasedAt    time.Time `json:"leased_at,omitempty"`
	LastFailure string    `json:"last_failure,omitempty"`
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		Name:        s.name,
		Index:       s.index,
		State:       s.state.String(),
		CreatedAt:   s.createdAt,
		Generation:  s.generation,
		Recreations: s.recreations,
		LastFailure: s.lastFailure,
	}
	if s.handle != nil {
		info.HandleID = s.handle.ID()
	}
	if s.state == StateBusy || s.state == StateRecovering {
		info.LeasedAt = s.leasedAt
	}
	return info
}

// Lease is a temporary, non-owning hold on a session. It must be given back
// with Pool.Release exactly once.
type Lease struct {
	pool     *Pool
	session  *session
	released atomic.Bool
}

// Session returns the stable name of the leased session.
func (l *Lease) Session() string {
	return l.session.name
}

// Index returns the slot index of the leased session.
func (l *Lease) Index() int {
	return l.session.index
}

// Handle returns the current automation handle. It changes after Recreate.
func (l *Lease) Handle() engine.Handle {
	l.session.mu.Lock()
	defer l.session.mu.Unlock()
	return l.session.handle
}

// Release is shorthand for Pool.Release(l).
func (l *Lease) Release() error {
	return l.pool.Release(l)
}

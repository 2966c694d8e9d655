package pool

import (
	"errors"
	"fmt"
)

// Common errors returned by the pool.
var (
	// ErrInvalidPoolSize is returned by Open when the configured size is below one.
	ErrInvalidPoolSize = errors.New("pool size must be at least 1")

	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("pool closed")

	// ErrLeaseReleased is returned when a lease is used after it was released.
	ErrLeaseReleased = errors.New("lease already released")

	// ErrFetchExhausted is matched by every FetchExhaustedError.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")
)

// StartupError reports a session that failed to launch while opening the pool.
// Slot is -1 when the failure happened before any session was launched.
type StartupError struct {
	Slot int
	Err  error
}

// Error implements the error interface.
func (e *StartupError) Error() string {
	if e.Slot < 0 {
		return fmt.Sprintf("pool startup failed: %v", e.Err)
	}
	return fmt.Sprintf("pool startup failed: session %d: %v", e.Slot, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StartupError) Unwrap() error {
	return e.Err
}

// SessionBrokenError reports a session that failed while being driven or
// relaunched. FetchContent surfaces it only as the cause of a
// FetchExhaustedError.
type SessionBrokenError struct {
	Session string
	Attempt int
	Err     error
}

// Error implements the error interface.
func (e *SessionBrokenError) Error() string {
	return fmt.Sprintf("session %s broken on attempt %d: %v", e.Session, e.Attempt, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SessionBrokenError) Unwrap() error {
	return e.Err
}

// FetchExhaustedError is returned when every attempt to fetch a URL failed.
// Err is the last underlying failure.
type FetchExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempts exhausted: %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes both ErrFetchExhausted and the last underlying error.
func (e *FetchExhaustedError) Unwrap() []error {
	return []error{ErrFetchExhausted, e.Err}
}

// ShutdownMisuseError is returned by Close while leases are still outstanding.
// The pool is left open and fully usable.
type ShutdownMisuseError struct {
	Outstanding int
}

// Error implements the error interface.
func (e *ShutdownMisuseError) Error() string {
	return fmt.Sprintf("pool close with %d outstanding lease(s)", e.Outstanding)
}

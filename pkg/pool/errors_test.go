package pool

import (
	"errors"
	"strings"
	"testing"
)

func TestStartupError(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      *StartupError
		contains string
	}{
		{name: "slot", err: &StartupError{Slot: 3, Err: cause}, contains: "session 3: boom"},
		{name: "before launch", err: &StartupError{Slot: -1, Err: cause}, contains: "pool startup failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), tt.contains)
			}
			if !errors.Is(tt.err, cause) {
				t.Error("StartupError does not unwrap to its cause")
			}
		})
	}
}

func TestFetchExhaustedError(t *testing.T) {
	cause := &SessionBrokenError{Session: "session-1", Attempt: 5, Err: errors.New("target closed")}
	err := error(&FetchExhaustedError{URL: "https://example.com", Attempts: 5, Err: cause})

	if !errors.Is(err, ErrFetchExhausted) {
		t.Error("errors.Is(err, ErrFetchExhausted) = false")
	}

	var broken *SessionBrokenError
	if !errors.As(err, &broken) {
		t.Fatal("errors.As(err, *SessionBrokenError) = false")
	}
	if broken.Session != "session-1" {
		t.Errorf("Session = %q, want session-1", broken.Session)
	}

	want := "fetch https://example.com: 5 attempts exhausted: session session-1 broken on attempt 5: target closed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestShutdownMisuseError(t *testing.T) {
	err := &ShutdownMisuseError{Outstanding: 2}
	if err.Error() != "pool close with 2 outstanding lease(s)" {
		t.Errorf("Error() = %q", err.Error())
	}
}

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/render-pool/internal/testutil"
	"github.com/Sternrassler/render-pool/pkg/engine"
)

// newTestPool opens a pool of size sessions on eng with logging disabled.
func newTestPool(t *testing.T, size int, eng *testutil.FakeEngine, mutate ...func(*Config)) *Pool {
	t.Helper()

	nop := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.Size = size
	cfg.Engine = eng
	cfg.Logger = &nop
	for _, fn := range mutate {
		fn(&cfg)
	}

	p, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestOpen(t *testing.T) {
	eng := testutil.NewFakeEngine()
	p := newTestPool(t, 3, eng)

	if p.Size() != 3 {
		t.Errorf("Size() = %d, want 3", p.Size())
	}
	if eng.Launches() != 3 {
		t.Errorf("Launches() = %d, want 3", eng.Launches())
	}

	for i, info := range p.Sessions() {
		if want := fmt.Sprintf("session-%d", i); info.Name != want {
			t.Errorf("session %d name = %q, want %q", i, info.Name, want)
		}
		if info.State != "idle" {
			t.Errorf("session %d state = %q, want idle", i, info.State)
		}
		if info.HandleID == "" {
			t.Errorf("session %d has no handle", i)
		}
		if info.Generation != 1 {
			t.Errorf("session %d generation = %d, want 1", i, info.Generation)
		}
	}
}

func TestOpen_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			eng := testutil.NewFakeEngine()
			cfg := DefaultConfig()
			cfg.Size = size
			cfg.Engine = eng

			done := make(chan error, 1)
			go func() {
				_, err := Open(context.Background(), cfg)
				done <- err
			}()

			select {
			case err := <-done:
				var startupErr *StartupError
				if !errors.As(err, &startupErr) {
					t.Fatalf("Open error = %v, want *StartupError", err)
				}
				if !errors.Is(err, ErrInvalidPoolSize) {
					t.Errorf("Open error = %v, want ErrInvalidPoolSize", err)
				}
			case <-time.After(time.Second):
				t.Fatal("Open with invalid size did not fail fast")
			}

			if eng.Launches() != 0 {
				t.Errorf("Launches() = %d, want 0", eng.Launches())
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Size = 1
	cfg.Driver = "no-such-driver"

	_, err := Open(context.Background(), cfg)
	if !errors.Is(err, engine.ErrUnknownDriver) {
		t.Errorf("Open error = %v, want ErrUnknownDriver", err)
	}
}

func TestOpen_LaunchFailureTearsDown(t *testing.T) {
	eng := testutil.NewFakeEngine()
	launchErr := errors.New("browser crashed on start")
	eng.SetLaunchHook(func(n int) error {
		if n == 2 {
			return launchErr
		}
		return nil
	})

	nop := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.Size = 4
	cfg.Engine = eng
	cfg.Logger = &nop

	p, err := Open(context.Background(), cfg)
	if p != nil {
		t.Error("Open returned a pool despite a launch failure")
	}

	var startupErr *StartupError
	if !errors.As(err, &startupErr) {
		t.Fatalf("Open error = %v, want *StartupError", err)
	}
	if !errors.Is(err, launchErr) {
		t.Errorf("Open error = %v, want it to wrap the launch error", err)
	}
	if startupErr.Slot < 0 || startupErr.Slot >= 4 {
		t.Errorf("Slot = %d, want a valid slot", startupErr.Slot)
	}
	if got := eng.OpenHandles(); got != 0 {
		t.Errorf("OpenHandles() = %d, want 0 (no leaked handles)", got)
	}
	if !eng.Closed() {
		t.Error("engine should be closed after failed startup")
	}
}

func TestAcquireRelease_SequentialCycles(t *testing.T) {
	p := newTestPool(t, 1, testutil.NewFakeEngine())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 100; i++ {
		lease, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("cycle %d: Acquire failed: %v", i, err)
		}
		if err := p.Release(lease); err != nil {
			t.Fatalf("cycle %d: Release failed: %v", i, err)
		}
	}

	if state := p.Sessions()[0].State; state != "idle" {
		t.Errorf("state after cycles = %q, want idle", state)
	}
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	p := newTestPool(t, 1, testutil.NewFakeEngine())

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire on exhausted pool error = %v, want DeadlineExceeded", err)
	}

	acquired := make(chan *Lease, 1)
	go func() {
		l, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("waiting Acquire failed: %v", err)
			close(acquired)
			return
		}
		acquired <- l
	}()

	time.Sleep(20 * time.Millisecond)
	if err := lease.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	select {
	case l := <-acquired:
		if l == nil {
			return
		}
		if l.Session() != lease.Session() {
			t.Errorf("waiter got %q, want %q", l.Session(), lease.Session())
		}
		l.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Release")
	}
}

func TestAcquire_MutualExclusion(t *testing.T) {
	const size = 2
	p := newTestPool(t, size, testutil.NewFakeEngine())

	var (
		holders    atomic.Int32
		maxHolders atomic.Int32
		mu         sync.Mutex
		held       = make(map[string]bool)
		violations atomic.Int32
		wg         sync.WaitGroup
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				lease, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}

				n := holders.Add(1)
				for {
					cur := maxHolders.Load()
					if n <= cur || maxHolders.CompareAndSwap(cur, n) {
						break
					}
				}

				mu.Lock()
				if held[lease.Session()] {
					violations.Add(1)
				}
				held[lease.Session()] = true
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				delete(held, lease.Session())
				mu.Unlock()

				holders.Add(-1)
				lease.Release()
			}
		}()
	}
	wg.Wait()

	if got := maxHolders.Load(); got > size {
		t.Errorf("max concurrent holders = %d, want <= %d", got, size)
	}
	if got := violations.Load(); got != 0 {
		t.Errorf("session handed to two holders %d times", got)
	}
}

func TestRelease_Twice(t *testing.T) {
	p := newTestPool(t, 1, testutil.NewFakeEngine())

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := p.Release(lease); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := p.Release(lease); !errors.Is(err, ErrLeaseReleased) {
		t.Errorf("second Release error = %v, want ErrLeaseReleased", err)
	}
	if err := p.Recreate(context.Background(), lease); !errors.Is(err, ErrLeaseReleased) {
		t.Errorf("Recreate after Release error = %v, want ErrLeaseReleased", err)
	}

	// The double release must not have put the session in the idle channel twice.
	first, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer first.Release()

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(short); err == nil {
		t.Error("a size-1 pool handed out two leases")
	}
}

func TestRelease_ForeignLease(t *testing.T) {
	p1 := newTestPool(t, 1, testutil.NewFakeEngine())
	p2 := newTestPool(t, 1, testutil.NewFakeEngine())

	lease, err := p1.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lease.Release()

	if err := p2.Release(lease); err == nil {
		t.Error("Release accepted a lease from another pool")
	}
}

func TestRecreate_KeepsIdentity(t *testing.T) {
	eng := testutil.NewFakeEngine()
	p := newTestPool(t, 1, eng)

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	old := lease.Handle()
	if err := p.Recreate(context.Background(), lease); err != nil {
		t.Fatalf("Recreate failed: %v", err)
	}

	if lease.Handle().ID() == old.ID() {
		t.Error("Recreate kept the old handle")
	}
	if !old.(*testutil.FakeHandle).Closed() {
		t.Error("old handle was not closed")
	}
	if lease.Session() != "session-0" || lease.Index() != 0 {
		t.Errorf("identity changed: %s/%d", lease.Session(), lease.Index())
	}

	info := p.Sessions()[0]
	if info.State != "busy" {
		t.Errorf("state after Recreate = %q, want busy", info.State)
	}
	if info.Generation != 2 || info.Recreations != 1 {
		t.Errorf("generation/recreations = %d/%d, want 2/1", info.Generation, info.Recreations)
	}

	lease.Release()
	if state := p.Sessions()[0].State; state != "idle" {
		t.Errorf("state after Release = %q, want idle", state)
	}
}

func TestRecreate_Concurrent(t *testing.T) {
	eng := testutil.NewFakeEngine()
	p := newTestPool(t, 1, eng)

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lease.Release()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Recreate(context.Background(), lease); err != nil {
				t.Errorf("Recreate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// 1 launch at start-up + 5 serialized relaunches, one live handle.
	if eng.Launches() != 6 {
		t.Errorf("Launches() = %d, want 6", eng.Launches())
	}
	if eng.OpenHandles() != 1 {
		t.Errorf("OpenHandles() = %d, want 1", eng.OpenHandles())
	}
}

func TestClose_WithOutstandingLease(t *testing.T) {
	eng := testutil.NewFakeEngine()
	p := newTestPool(t, 2, eng)

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	err = p.Close()
	var misuse *ShutdownMisuseError
	if !errors.As(err, &misuse) {
		t.Fatalf("Close error = %v, want *ShutdownMisuseError", err)
	}
	if misuse.Outstanding != 1 {
		t.Errorf("Outstanding = %d, want 1", misuse.Outstanding)
	}
	if eng.Closed() || eng.OpenHandles() != 2 {
		t.Error("refused Close must leave the pool untouched")
	}

	// Still usable.
	other, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after refused Close failed: %v", err)
	}
	other.Release()
	lease.Release()

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close error = %v, want nil", err)
	}
	if !eng.Closed() {
		t.Error("engine not closed")
	}
	if eng.OpenHandles() != 0 {
		t.Errorf("OpenHandles() = %d, want 0", eng.OpenHandles())
	}
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire after Close error = %v, want ErrPoolClosed", err)
	}
	for _, info := range p.Sessions() {
		if info.State != "closed" {
			t.Errorf("%s state = %q, want closed", info.Name, info.State)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStarting, "starting"},
		{StateIdle, "idle"},
		{StateBusy, "busy"},
		{StateRecovering, "recovering"},
		{StateBroken, "broken"},
		{StateClosed, "closed"},
		{State(42), "state(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

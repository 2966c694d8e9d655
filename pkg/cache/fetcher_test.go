package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/render-pool/internal/testutil"
	"github.com/Sternrassler/render-pool/pkg/engine"
	"github.com/Sternrassler/render-pool/pkg/pool"
)

// countingUpstream renders a fixed page and counts calls.
type countingUpstream struct {
	calls   atomic.Int32
	headers map[string]string
	status  int
	err     error
}

func (u *countingUpstream) FetchContent(ctx context.Context, req pool.FetchRequest) (*pool.Page, error) {
	u.calls.Add(1)
	if u.err != nil {
		return nil, u.err
	}
	status := u.status
	if status == 0 {
		status = 200
	}
	return &pool.Page{
		URL:      req.URL,
		Response: &engine.Response{URL: req.URL, Status: status, Headers: u.headers},
		Content:  "<html>" + req.URL + "</html>",
		Attempts: 1,
	}, nil
}

func newTestFetcher(t *testing.T, up Upstream, client *redis.Client) *Fetcher {
	t.Helper()
	nop := zerolog.Nop()
	return NewFetcher(up, NewManager(client), &nop)
}

func TestFetcher_MissThenHit(t *testing.T) {
	up := &countingUpstream{}
	f := newTestFetcher(t, up, setupTestRedis(t))
	ctx := context.Background()
	req := pool.FetchRequest{URL: "https://example.com/tour"}

	first, err := f.FetchContent(ctx, req)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if first.FromCache {
		t.Error("first fetch served from cache")
	}

	second, err := f.FetchContent(ctx, req)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if !second.FromCache {
		t.Error("second fetch not served from cache")
	}
	if second.Content != first.Content {
		t.Errorf("cached content = %q, want %q", second.Content, first.Content)
	}
	if up.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", up.calls.Load())
	}
}

func TestFetcher_RenderOptionsSeparateEntries(t *testing.T) {
	up := &countingUpstream{}
	f := newTestFetcher(t, up, setupTestRedis(t))
	ctx := context.Background()

	url := "https://example.com/tour"
	if _, err := f.FetchContent(ctx, pool.FetchRequest{URL: url}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.FetchContent(ctx, pool.FetchRequest{URL: url, WaitForSelector: "h1"}); err != nil {
		t.Fatal(err)
	}
	if up.calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", up.calls.Load())
	}
}

func TestFetcher_DefaultWaitConditionSharesEntry(t *testing.T) {
	client := setupTestRedis(t)

	eng := testutil.NewFakeEngine()
	nop := zerolog.Nop()
	cfg := pool.DefaultConfig()
	cfg.Size = 1
	cfg.Engine = eng
	cfg.Logger = &nop
	p, err := pool.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("pool.Open failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	f := newTestFetcher(t, p, client)
	ctx := context.Background()
	url := "https://example.com/defaults"

	requests := []struct {
		req       pool.FetchRequest
		wantCache bool
	}{
		{req: pool.FetchRequest{URL: url}, wantCache: false},
		{req: pool.FetchRequest{URL: url, WaitUntil: cfg.WaitUntil}, wantCache: true},
		{req: pool.FetchRequest{URL: url, WaitUntil: engine.LoadStateNetworkIdle}, wantCache: false},
	}
	for i, r := range requests {
		page, err := f.FetchContent(ctx, r.req)
		if err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
		if page.FromCache != r.wantCache {
			t.Errorf("fetch %d (wait_until %q): FromCache = %v, want %v", i, r.req.WaitUntil, page.FromCache, r.wantCache)
		}
	}
	if n := eng.Navigations(url); n != 2 {
		t.Errorf("navigations = %d, want 2", n)
	}
}

func TestFetcher_NotCacheable(t *testing.T) {
	tests := []struct {
		name string
		up   *countingUpstream
	}{
		{name: "no-store", up: &countingUpstream{headers: map[string]string{"cache-control": "no-store"}}},
		{name: "server error", up: &countingUpstream{status: 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, tt.up, setupTestRedis(t))
			req := pool.FetchRequest{URL: "https://example.com/" + tt.name}

			for i := 0; i < 2; i++ {
				page, err := f.FetchContent(context.Background(), req)
				if err != nil {
					t.Fatalf("fetch %d failed: %v", i, err)
				}
				if page.FromCache {
					t.Errorf("fetch %d served from cache", i)
				}
			}
			if tt.up.calls.Load() != 2 {
				t.Errorf("upstream calls = %d, want 2", tt.up.calls.Load())
			}
		})
	}
}

func TestFetcher_UpstreamError(t *testing.T) {
	up := &countingUpstream{err: &pool.FetchExhaustedError{URL: "x", Attempts: 5, Err: errors.New("crash")}}
	f := newTestFetcher(t, up, setupTestRedis(t))

	_, err := f.FetchContent(context.Background(), pool.FetchRequest{URL: "https://example.com/"})
	if !errors.Is(err, pool.ErrFetchExhausted) {
		t.Errorf("error = %v, want ErrFetchExhausted", err)
	}
}

func TestFetcher_RedisDownFallsThrough(t *testing.T) {
	// Nothing listens on this port.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	up := &countingUpstream{}
	f := newTestFetcher(t, up, client)

	page, err := f.FetchContent(context.Background(), pool.FetchRequest{URL: "https://example.com/"})
	if err != nil {
		t.Fatalf("fetch failed with Redis down: %v", err)
	}
	if page.FromCache || up.calls.Load() != 1 {
		t.Errorf("FromCache = %v, upstream calls = %d; want rendered page", page.FromCache, up.calls.Load())
	}
}

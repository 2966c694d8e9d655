package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/render-pool/pkg/engine"
)

// RunEngineConformance drives eng through the handle lifecycle against a
// MockSite. Engine adapters call it from their integration tests.
func RunEngineConformance(t *testing.T, eng engine.Engine, opts engine.Options) {
	t.Helper()

	site := NewMockSite()
	defer site.Close()
	site.SetPage("/article", NewCachedPage("Conformance", time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	h, err := eng.Launch(ctx, opts)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer h.Close()

	if h.ID() == "" {
		t.Error("handle has no ID")
	}

	resp, err := h.Navigate(ctx, site.PageURL("/article"))
	if err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if cc := resp.Header("Cache-Control"); cc != "max-age=60" {
		t.Errorf("Cache-Control = %q, want max-age=60", cc)
	}

	for _, state := range []engine.LoadState{engine.LoadStateDOMContentLoaded, engine.LoadStateLoad, engine.LoadStateNetworkIdle} {
		if err := h.WaitForLoad(ctx, state); err != nil {
			t.Errorf("WaitForLoad(%s) failed: %v", state, err)
		}
	}

	if err := h.WaitForSelector(ctx, "p.price"); err != nil {
		t.Errorf("WaitForSelector failed: %v", err)
	}

	shortCtx, shortCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	err = h.WaitForSelector(shortCtx, "#does-not-exist")
	shortCancel()
	if err == nil {
		t.Error("WaitForSelector on a missing element should fail")
	}

	content, err := h.Content(ctx)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if !strings.Contains(content, "<h1>Conformance</h1>") {
		t.Errorf("content missing heading: %s", content)
	}

	if err := h.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := h.Navigate(ctx, site.PageURL("/article")); err == nil {
		t.Error("Navigate on a closed handle should fail")
	}
}

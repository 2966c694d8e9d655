package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/render-pool/pkg/batch"
	"github.com/Sternrassler/render-pool/pkg/cache"
	"github.com/Sternrassler/render-pool/pkg/config"
	"github.com/Sternrassler/render-pool/pkg/engine"
	"github.com/Sternrassler/render-pool/pkg/extract"
	"github.com/Sternrassler/render-pool/pkg/metrics"
	"github.com/Sternrassler/render-pool/pkg/pool"
)

// maxBatchURLs bounds one /batch request.
const maxBatchURLs = 1000

type server struct {
	pool    *pool.Pool
	fetcher batch.Fetcher
	cache   *cache.Manager // nil when caching is disabled
	batch   batch.Config
	timeout time.Duration
	logger  zerolog.Logger
}

func newServer(p *pool.Pool, fetcher batch.Fetcher, manager *cache.Manager, cfg *config.Config, logger zerolog.Logger) *server {
	return &server{
		pool:    p,
		fetcher: fetcher,
		cache:   manager,
		batch:   cfg.BatchConfig(nil),
		timeout: cfg.Server.RequestTimeout.Duration,
		logger:  logger,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.HandleFunc("GET /sessions", s.sessionsHandler)
	mux.HandleFunc("GET /render", s.renderHandler)
	mux.HandleFunc("POST /batch", s.batchHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while every session is broken or Redis is down.
func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	usable := 0
	for _, info := range s.pool.Sessions() {
		if info.State != pool.StateBroken.String() && info.State != pool.StateClosed.String() {
			usable++
		}
	}
	if usable == 0 {
		http.Error(w, "no usable sessions", http.StatusServiceUnavailable)
		return
	}

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cache.Ping(ctx); err != nil {
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Sessions())
}

// renderHandler renders ?url= and returns HTML (default), the page as JSON
// (format=json) or the extracted record (format=record).
func (s *server) renderHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	req := pool.FetchRequest{URL: target, WaitForSelector: q.Get("selector")}
	if raw := q.Get("wait_until"); raw != "" {
		state, err := engine.ParseLoadState(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.WaitUntil = state
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	page, err := s.fetcher.FetchContent(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", target).Msg("Render failed")
		http.Error(w, fmt.Sprintf("render failed: %v", err), statusFor(err))
		return
	}

	setPageHeaders(w, page)

	switch q.Get("format") {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(page.Content)); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to write response")
		}
	case "json":
		writeJSON(w, http.StatusOK, page)
	case "record":
		rec, err := extract.NewParser(nil).Parse(page)
		if err != nil {
			http.Error(w, fmt.Sprintf("extract failed: %v", err), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		http.Error(w, "format must be html, json or record", http.StatusBadRequest)
	}
}

type batchRequest struct {
	URLs   []string          `json:"urls"`
	Fields map[string]string `json:"fields,omitempty"`
}

type batchLine struct {
	Index     int             `json:"index"`
	URL       string          `json:"url"`
	Record    *extract.Record `json:"record,omitempty"`
	Attempts  int             `json:"attempts,omitempty"`
	FromCache bool            `json:"from_cache,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// batchHandler streams one NDJSON line per URL in completion order.
func (s *server) batchHandler(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(body.URLs) == 0 {
		http.Error(w, "urls must not be empty", http.StatusBadRequest)
		return
	}
	if len(body.URLs) > maxBatchURLs {
		http.Error(w, fmt.Sprintf("at most %d urls per batch", maxBatchURLs), http.StatusRequestEntityTooLarge)
		return
	}

	orch := batch.New[extract.Record](s.fetcher, extract.NewParser(body.Fields), s.batch)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for res := range orch.All(r.Context(), body.URLs) {
		line := batchLine{Index: res.Index, URL: res.URL}
		if res.Err != nil {
			line.Error = res.Err.Error()
		} else {
			rec := res.Record
			line.Record = &rec
			line.Attempts = res.Page.Attempts
			line.FromCache = res.Page.FromCache
		}

		if err := enc.Encode(line); err != nil {
			s.logger.Debug().Err(err).Msg("Client went away during batch")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func setPageHeaders(w http.ResponseWriter, page *pool.Page) {
	h := w.Header()
	if page.FromCache {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
		h.Set("X-Render-Attempts", strconv.Itoa(page.Attempts))
		h.Set("X-Render-Session", page.Session)
	}
	if page.Response != nil && page.Response.Status != 0 {
		h.Set("X-Upstream-Status", strconv.Itoa(page.Response.Status))
	}
}

// statusFor maps fetch errors to proxy status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pool.ErrFetchExhausted):
		return http.StatusBadGateway
	case errors.Is(err, pool.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

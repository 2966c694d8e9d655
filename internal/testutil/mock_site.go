// Package testutil provides testing utilities for the render pool: a mock
// target site and a scriptable in-memory engine.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockPage defines the behavior for one mock site path.
type MockPage struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSite is a configurable HTML site for testing.
type MockSite struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount int
	pathCount    map[string]int
}

// NewMockSite starts a new mock site.
func NewMockSite() *MockSite {
	site := &MockSite{
		handlers:  make(map[string]http.HandlerFunc),
		pathCount: make(map[string]int),
	}

	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.requestCount++
		site.pathCount[r.URL.Path]++
		handler, exists := site.handlers[r.URL.Path]
		site.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		site.defaultHandler(w, r)
	}))

	return site
}

// URL returns the site base URL.
func (m *MockSite) URL() string {
	return m.server.URL
}

// PageURL returns the absolute URL of path on the site.
func (m *MockSite) PageURL(path string) string {
	return m.server.URL + path
}

// Close shuts down the site.
func (m *MockSite) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSite) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCount = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSite) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetPage configures a static page for a path.
func (m *MockSite) SetPage(path string, page MockPage) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if page.Delay > 0 {
			time.Sleep(page.Delay)
		}
		for key, value := range page.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		status := page.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if page.Body != "" {
			w.Write([]byte(page.Body))
		}
	})
}

// RequestCount returns the number of requests served.
func (m *MockSite) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests served for path.
func (m *MockSite) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCount[path]
}

// defaultHandler renders a small article titled after the request path.
func (m *MockSite) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ArticleHTML(r.URL.Path, "Default page for "+r.URL.Path)))
}

// ArticleHTML builds a minimal HTML document with a title, description,
// a heading and a couple of links.
func ArticleHTML(title, description string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>%[1]s</title>
  <meta name="description" content="%[2]s">
  <meta property="og:description" content="og: %[2]s">
</head>
<body>
  <h1>%[1]s</h1>
  <h2 class="subtitle">Section</h2>
  <p class="price">42 EUR</p>
  <a href="/next">Next</a>
  <a href="https://example.org/abs">Absolute</a>
</body>
</html>`, title, description)
}

// NewCachedPage creates a 200 page that may be cached for maxAge.
func NewCachedPage(title string, maxAge time.Duration) MockPage {
	return MockPage{
		StatusCode: http.StatusOK,
		Body:       ArticleHTML(title, "cached "+title),
		Headers: map[string]string{
			"Cache-Control": fmt.Sprintf("max-age=%d", int(maxAge.Seconds())),
		},
	}
}

// NewNoStorePage creates a 200 page that must not be cached.
func NewNoStorePage(title string) MockPage {
	return MockPage{
		StatusCode: http.StatusOK,
		Body:       ArticleHTML(title, "private "+title),
		Headers: map[string]string{
			"Cache-Control": "no-store",
		},
	}
}

// NewServerErrorPage creates a 500 page.
func NewServerErrorPage() MockPage {
	return MockPage{
		StatusCode: http.StatusInternalServerError,
		Body:       "<html><body><h1>Internal Server Error</h1></body></html>",
	}
}

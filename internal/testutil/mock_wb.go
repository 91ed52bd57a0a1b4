// Package testutil provides testing utilities for the World Bank API client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockWB is a configurable mock World Bank API server for testing.
type MockWB struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	PagesSeen    []int
}

// NewMockWB creates a new mock API server.
func NewMockWB() *MockWB {
	mock := &MockWB{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
			mock.PagesSeen = append(mock.PagesSeen, page)
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"not found"}`)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockWB) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockWB) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockWB) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PagesSeen = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockWB) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPagesSeen returns the page numbers requested, in order.
func (m *MockWB) GetPagesSeen() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.PagesSeen...)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockWB) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path, regardless of page.
func (m *MockWB) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetPages configures per-page responses for a path. Requests for pages
// without a configured response get a 404.
func (m *MockWB) SetPages(path string, pages map[int]MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
			page = p
		}
		resp, ok := pages[page]
		if !ok {
			resp = MockResponse{StatusCode: http.StatusNotFound, Body: `{"message":"no such page"}`}
		}
		writeResponse(w, resp)
	})
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// Envelope renders a [meta, data] response body with the given pagination
// envelope and raw JSON record array.
func Envelope(page, pages, perPage, total int, records string) string {
	if records == "" {
		records = "[]"
	}
	return fmt.Sprintf(`[{"page":%d,"pages":%d,"per_page":%d,"total":%d},%s]`,
		page, pages, perPage, total, records)
}

// NewEnvelopeResponse creates a 200 OK envelope response.
func NewEnvelopeResponse(page, pages, perPage, total int, records string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       Envelope(page, pages, perPage, total, records),
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"internal server error"}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"rate limit exceeded"}`,
	}
}

package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockUpstream provides a mock data-source API server for testing.
type MockUpstream struct {
	*httptest.Server
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	captures []Capture
}

// NewMockUpstream creates a mock upstream server.
// The server is automatically closed when the test completes.
func NewMockUpstream(t *testing.T) *MockUpstream {
	t.Helper()

	m := &MockUpstream{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		captures: make([]Capture, 0),
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	// Read body once for capture
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	// Restore body for downstream handler
	r.Body = io.NopCloser(bytes.NewReader(body))

	m.mu.Lock()
	m.captures = append(m.captures, Capture{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.Query(),
		Headers:     r.Header.Clone(),
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Timestamp:   time.Now(),
	})

	key := r.Method + ":" + r.URL.Path
	handler, exists := m.handlers[key]
	m.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}

	// Default success response
	ReplyData(w, map[string]any{})
}

// OnMethod registers a handler for a specific HTTP method and path.
func (m *MockUpstream) OnMethod(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+":"+path] = handler
}

// On registers a handler for a GET request (the common fetch case).
func (m *MockUpstream) On(path string, handler http.HandlerFunc) {
	m.OnMethod("GET", path, handler)
}

// Captures returns all captured requests.
func (m *MockUpstream) Captures() []Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Capture{}, m.captures...)
}

// LastCapture returns the most recent captured request.
func (m *MockUpstream) LastCapture() *Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.captures) == 0 {
		return nil
	}
	return &m.captures[len(m.captures)-1]
}

// CaptureCount returns the total number of captured requests.
func (m *MockUpstream) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.captures)
}

// ResetCaptures clears captures, keeping handlers.
func (m *MockUpstream) ResetCaptures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures = m.captures[:0]
}

// BaseURL returns the server's base URL.
// Use this as the source endpoint when creating fetchers.
func (m *MockUpstream) BaseURL() string {
	return m.Server.URL
}

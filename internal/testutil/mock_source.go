// Package testutil provides testing utilities for the docpull pipeline.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockDocument is one document the mock source serves: a listing entry
// plus the payload behind its download URL.
type MockDocument struct {
	ID      string
	Name    string
	Date    string
	Payload string
}

// MockSource is a configurable paginated document service for testing.
// It serves a JSON listing under /api/documents?page=N and document
// payloads under /docs/{name}.
type MockSource struct {
	server *httptest.Server

	mu       sync.RWMutex
	pages    [][]MockDocument
	handlers map[string]http.HandlerFunc

	// failures holds per-document and listing failure budgets consumed
	// before requests succeed again, for retry tests.
	fetchFailures   map[string]int
	listingFailures int

	// Tracking
	RequestCount      int
	ListingCount      int
	FetchCount        int
	LastRequestHeader http.Header
}

// NewMockSource creates a mock source serving the given listing pages.
func NewMockSource(pages [][]MockDocument) *MockSource {
	mock := &MockSource{
		pages:         pages,
		handlers:      make(map[string]http.HandlerFunc),
		fetchFailures: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		switch {
		case r.URL.Path == "/api/documents":
			mock.serveListing(w, r)
		case strings.HasPrefix(r.URL.Path, "/docs/"):
			mock.serveDocument(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSource) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and failure budgets.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ListingCount = 0
	m.FetchCount = 0
	m.LastRequestHeader = nil
	m.fetchFailures = make(map[string]int)
	m.listingFailures = 0
}

// SetHandler sets a custom handler for a specific path, overriding the
// built-in listing and document behavior.
func (m *MockSource) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailFetches makes the next n downloads of the named document answer
// with a 500 before it becomes fetchable again.
func (m *MockSource) FailFetches(name string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchFailures[name] = n
}

// FailListings makes the next n listing requests answer with a 500.
func (m *MockSource) FailListings(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listingFailures = n
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSource) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetListingCount returns the number of listing page requests.
func (m *MockSource) GetListingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ListingCount
}

// GetFetchCount returns the number of document download requests.
func (m *MockSource) GetFetchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FetchCount
}

// serveListing answers /api/documents?page=N with the wire shape the
// JSON source consumes.
func (m *MockSource) serveListing(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.ListingCount++
	if m.listingFailures > 0 {
		m.listingFailures--
		m.mu.Unlock()
		http.Error(w, `{"error": "listing unavailable"}`, http.StatusInternalServerError)
		return
	}
	pages := m.pages
	baseURL := m.server.URL
	m.mu.Unlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	var docs []MockDocument
	if page <= len(pages) {
		docs = pages[page-1]
	}

	type listingItem struct {
		ID   string `json:"id"`
		URL  string `json:"url"`
		Name string `json:"name"`
		Date string `json:"date"`
	}
	out := struct {
		Items []listingItem `json:"items"`
		Meta  struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"meta"`
	}{
		Items: make([]listingItem, 0, len(docs)),
	}
	out.Meta.CurrentPage = page
	out.Meta.TotalPages = len(pages)

	for _, d := range docs {
		out.Items = append(out.Items, listingItem{
			ID:   d.ID,
			URL:  baseURL + "/docs/" + d.Name,
			Name: d.Name,
			Date: d.Date,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(out)
}

// serveDocument answers /docs/{name} with the document payload.
func (m *MockSource) serveDocument(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/docs/")

	m.mu.Lock()
	m.FetchCount++
	if m.fetchFailures[name] > 0 {
		m.fetchFailures[name]--
		m.mu.Unlock()
		http.Error(w, `{"error": "temporary failure"}`, http.StatusInternalServerError)
		return
	}

	var payload string
	found := false
	for _, pg := range m.pages {
		for _, d := range pg {
			if d.Name == name {
				payload = d.Payload
				found = true
			}
		}
	}
	m.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write([]byte(payload))
}

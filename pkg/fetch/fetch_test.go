package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/docpull/docpull/pkg/pagination"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func testItem(id string, url string) pagination.WorkItem {
	return pagination.WorkItem{
		ID:            id,
		SourceLocator: url,
		TargetName:    id + ".pdf",
		OrderingKey:   "2024-01-01",
	}
}

func TestNew_Validation(t *testing.T) {
	sink, _ := newMemSink(t)

	if _, err := New(nil, Config{UserAgent: "test/1.0"}, testLogger()); err == nil {
		t.Error("New accepted a nil sink")
	}
	if _, err := New(sink, Config{}, testLogger()); err == nil {
		t.Error("New accepted an empty user-agent")
	}

	f, err := New(sink, Config{UserAgent: "test/1.0"}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.httpClient.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default %v", f.httpClient.Timeout, defaultTimeout)
	}
}

func TestFetcher_Fetch_StoresDocument(t *testing.T) {
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		fmt.Fprint(w, "document payload")
	}))
	defer server.Close()

	sink, fs := newMemSink(t)
	f, err := New(sink, Config{UserAgent: "docpull-test/1.0"}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	item := testItem("doc-1", server.URL+"/docs/doc-1")
	if err := f.Fetch(context.Background(), item); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	data, err := afero.ReadFile(fs, "docs/doc-1.pdf")
	if err != nil {
		t.Fatalf("reading stored document: %v", err)
	}
	if string(data) != "document payload" {
		t.Errorf("stored content = %q, want %q", data, "document payload")
	}
	if ua, _ := gotUA.Load().(string); ua != "docpull-test/1.0" {
		t.Errorf("request user-agent = %q, want %q", ua, "docpull-test/1.0")
	}
}

func TestFetcher_Fetch_SkipsExistingDocument(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, "fresh payload")
	}))
	defer server.Close()

	sink, fs := newMemSink(t)
	if err := afero.WriteFile(fs, "docs/doc-1.pdf", []byte("already here"), 0o644); err != nil {
		t.Fatalf("seeding document: %v", err)
	}

	f, err := New(sink, Config{UserAgent: "docpull-test/1.0"}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := f.Fetch(context.Background(), testItem("doc-1", server.URL+"/docs/doc-1")); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if n := requests.Load(); n != 0 {
		t.Errorf("server received %d requests for an already-stored document", n)
	}
	data, _ := afero.ReadFile(fs, "docs/doc-1.pdf")
	if string(data) != "already here" {
		t.Errorf("existing document was overwritten: %q", data)
	}
}

func TestFetcher_Fetch_TargetNameDefaultsToID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	sink, fs := newMemSink(t)
	f, err := New(sink, Config{UserAgent: "docpull-test/1.0"}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	item := pagination.WorkItem{ID: "doc-9", SourceLocator: server.URL + "/docs/doc-9"}
	if err := f.Fetch(context.Background(), item); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if exists, _ := afero.Exists(fs, "docs/doc-9"); !exists {
		t.Error("document not stored under its id")
	}
}

func TestFetcher_Fetch_MissingLocator(t *testing.T) {
	sink, _ := newMemSink(t)
	f, err := New(sink, Config{UserAgent: "docpull-test/1.0"}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = f.Fetch(context.Background(), pagination.WorkItem{ID: "doc-1"})
	if !errors.Is(err, ErrMissingLocator) {
		t.Errorf("Fetch error = %v, want ErrMissingLocator", err)
	}
}

func TestFetcher_Fetch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantClass     ErrorClass
		wantRetryable bool
	}{
		{"not found is permanent", http.StatusNotFound, ErrorClassClient, false},
		{"forbidden is permanent", http.StatusForbidden, ErrorClassClient, false},
		{"server failure is transient", http.StatusInternalServerError, ErrorClassServer, true},
		{"bad gateway is transient", http.StatusBadGateway, ErrorClassServer, true},
		{"throttling is transient", http.StatusTooManyRequests, ErrorClassRateLimit, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			sink, fs := newMemSink(t)
			f, err := New(sink, Config{UserAgent: "docpull-test/1.0"}, testLogger())
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			err = f.Fetch(context.Background(), testItem("doc-1", server.URL+"/docs/doc-1"))
			if err == nil {
				t.Fatalf("Fetch succeeded on status %d", tt.status)
			}

			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Fetch error = %T, want *FetchError", err)
			}
			if fe.Class != tt.wantClass {
				t.Errorf("class = %s, want %s", fe.Class, tt.wantClass)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", fe.StatusCode, tt.status)
			}
			if fe.Retryable() != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", fe.Retryable(), tt.wantRetryable)
			}

			if exists, _ := afero.Exists(fs, "docs/doc-1.pdf"); exists {
				t.Error("failed fetch left a stored document")
			}
		})
	}
}

func TestFetcher_Fetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	sink, _ := newMemSink(t)
	f, err := New(sink, Config{UserAgent: "docpull-test/1.0"}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = f.Fetch(context.Background(), testItem("doc-1", url+"/docs/doc-1"))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch error = %T (%v), want *FetchError", err, err)
	}
	if fe.Class != ErrorClassNetwork {
		t.Errorf("class = %s, want %s", fe.Class, ErrorClassNetwork)
	}
	if fe.Err == nil {
		t.Error("network FetchError missing the underlying error")
	}
	if !fe.Retryable() {
		t.Error("network error should be retryable")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   ErrorClass
	}{
		{"transport error", 0, errors.New("connection refused"), ErrorClassNetwork},
		{"throttled", http.StatusTooManyRequests, nil, ErrorClassRateLimit},
		{"client error", http.StatusNotFound, nil, ErrorClassClient},
		{"server error", http.StatusServiceUnavailable, nil, ErrorClassServer},
		{"success is unclassified", http.StatusOK, nil, ErrorClass("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.status, tt.err); got != tt.want {
				t.Errorf("classify(%d, %v) = %q, want %q", tt.status, tt.err, got, tt.want)
			}
		})
	}
}

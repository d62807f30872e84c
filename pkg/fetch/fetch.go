// Package fetch provides the production download operation for the queue:
// HTTP retrieval of document payloads into a pluggable sink, with error
// classification for observability.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/docpull/docpull/pkg/pagination"
)

// Prometheus metrics for document fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpull_fetch_requests_total",
		Help: "Total document fetch requests by status",
	}, []string{"status"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpull_fetch_errors_total",
		Help: "Total document fetch errors by class",
	}, []string{"class"})

	fetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docpull_fetch_duration_seconds",
		Help:    "Document fetch duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	fetchBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpull_fetch_bytes_total",
		Help: "Total document payload bytes stored",
	})

	fetchSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpull_fetch_skipped_total",
		Help: "Total fetches skipped because the document was already stored",
	})
)

const defaultTimeout = 30 * time.Second

// Config holds the fetcher configuration.
type Config struct {
	// User-Agent header sent with every request (REQUIRED).
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout bounds a single document request end to end.
	Timeout time.Duration
}

// Fetcher downloads work items over HTTP and hands the payload to a sink.
// Its Fetch method has the queue operation signature, so a Fetcher can be
// passed straight into queue.NewQueue.
type Fetcher struct {
	httpClient *http.Client
	sink       Sink
	cfg        Config
	logger     zerolog.Logger
}

// New creates a new document fetcher.
func New(sink Sink, cfg Config, logger zerolog.Logger) (*Fetcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("document sink is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		sink:   sink,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Fetch downloads one work item into the sink. A document already present
// under the item's target name is skipped and reported as success, which
// makes re-running a whole download phase after a crash safe.
func (f *Fetcher) Fetch(ctx context.Context, item pagination.WorkItem) error {
	if item.SourceLocator == "" {
		return ErrMissingLocator
	}

	name := item.TargetName
	if name == "" {
		name = item.ID
	}

	exists, err := f.sink.Exists(name)
	if err != nil {
		return fmt.Errorf("check existing document: %w", err)
	}
	if exists {
		f.logger.Debug().
			Str("id", item.ID).
			Str("target", name).
			Msg("Document already stored, skipping fetch")
		fetchSkippedTotal.Inc()
		return nil
	}

	startTime := time.Now()
	defer func() {
		fetchDurationSeconds.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.SourceLocator, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		class := classify(0, err)
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		fetchRequestsTotal.WithLabelValues("network_error").Inc()

		f.logger.Error().Err(err).
			Str("id", item.ID).
			Str("url", item.SourceLocator).
			Msg("Document request failed")

		return &FetchError{Class: class, URL: item.SourceLocator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		class := classify(resp.StatusCode, nil)
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		fetchRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

		f.logger.Warn().
			Str("id", item.ID).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Document fetch error")

		// Drain a little so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return &FetchError{
			StatusCode: resp.StatusCode,
			Class:      class,
			URL:        item.SourceLocator,
		}
	}

	n, err := f.sink.Store(name, resp.Body)
	if err != nil {
		return fmt.Errorf("store document %s: %w", name, err)
	}

	fetchRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
	fetchBytesTotal.Add(float64(n))

	f.logger.Debug().
		Str("id", item.ID).
		Str("target", name).
		Int64("bytes", n).
		Msg("Document stored")

	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/docpull/docpull/pkg/pagination"
)

// Prometheus metrics for listing page fetches.
var (
	sourcePagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpull_source_pages_total",
		Help: "Total listing pages fetched by outcome",
	}, []string{"outcome"})

	sourcePageDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docpull_source_page_duration_seconds",
		Help:    "Listing page fetch duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

const defaultTimeout = 15 * time.Second

// documentPage is the wire shape of one listing page.
type documentPage struct {
	Items []documentItem `json:"items"`
	Meta  pageMeta       `json:"meta"`
}

type documentItem struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Date string `json:"date"`
}

type pageMeta struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// Config holds the JSON source configuration.
type Config struct {
	// BaseURL is the listing service root, e.g. "https://docs.example.com".
	BaseURL string

	// UserAgent header sent with every listing request (REQUIRED).
	UserAgent string

	// Timeout bounds a single listing page request.
	Timeout time.Duration
}

// JSONSource lists documents from a paginated JSON API
// (GET {base}/api/documents?page=N). It acts as both the Collector and
// the Navigator of a collection run.
type JSONSource struct {
	httpClient *http.Client
	base       string
	cfg        Config
	logger     zerolog.Logger

	mu         sync.Mutex
	page       int
	totalPages int
	lastEmpty  bool
}

// NewJSONSource creates a source over a paginated listing API.
func NewJSONSource(cfg Config, logger zerolog.Logger) (*JSONSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &JSONSource{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		cfg:    cfg,
		logger: logger,
		page:   1,
	}, nil
}

// Collect implements pagination.Collector. A page whose body cannot be
// decoded is reported as a CollectionError so the run can fail open;
// transport and status failures abort the run resumably.
func (s *JSONSource) Collect(ctx context.Context, page int, bounds pagination.Bounds, excludeIDs map[string]bool) (pagination.PageResult, error) {
	startTime := time.Now()
	defer func() {
		sourcePageDurationSeconds.Observe(time.Since(startTime).Seconds())
	}()

	url := fmt.Sprintf("%s/api/documents?page=%d", s.base, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pagination.PageResult{}, fmt.Errorf("create listing request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		sourcePagesTotal.WithLabelValues("error").Inc()
		return pagination.PageResult{}, fmt.Errorf("list page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sourcePagesTotal.WithLabelValues("error").Inc()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return pagination.PageResult{}, fmt.Errorf("list page %d: unexpected status %d", page, resp.StatusCode)
	}

	var doc documentPage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		sourcePagesTotal.WithLabelValues("unreadable").Inc()
		return pagination.PageResult{}, &pagination.CollectionError{Page: page, Err: err}
	}

	items := make([]pagination.WorkItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, pagination.WorkItem{
			ID:            it.ID,
			SourceLocator: it.URL,
			TargetName:    it.Name,
			OrderingKey:   it.Date,
		})
	}

	kept, stop := filterByBounds(items, bounds, excludeIDs)

	s.mu.Lock()
	s.page = page
	if doc.Meta.TotalPages > 0 {
		s.totalPages = doc.Meta.TotalPages
	}
	s.lastEmpty = len(doc.Items) == 0
	s.mu.Unlock()

	sourcePagesTotal.WithLabelValues("ok").Inc()

	s.logger.Debug().
		Int("page", page).
		Int("page_items", len(doc.Items)).
		Int("in_bounds", len(kept)).
		Bool("stop", stop).
		Msg("Listing page collected")

	return pagination.PageResult{
		Items:      kept,
		TotalPages: doc.Meta.TotalPages,
		Stop:       stop,
	}, nil
}

// HasNext implements pagination.Navigator. With no page-count report
// from the server the source keeps going until it sees an empty page.
func (s *JSONSource) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastEmpty {
		return false
	}
	if s.totalPages > 0 {
		return s.page < s.totalPages
	}
	return true
}

// Advance implements pagination.Navigator.
func (s *JSONSource) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page++
	return nil
}

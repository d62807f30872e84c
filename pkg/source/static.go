package source

import (
	"context"
	"sync"

	"github.com/docpull/docpull/pkg/pagination"
)

// StaticSource serves pre-defined pages from memory. It backs the
// examples and any test that needs a deterministic source without a
// network.
type StaticSource struct {
	mu    sync.Mutex
	pages [][]pagination.WorkItem
	page  int
}

// NewStaticSource creates a source over fixed pages. Page N of the run
// maps to pages[N-1]; anything past the end is an empty page.
func NewStaticSource(pages [][]pagination.WorkItem) *StaticSource {
	return &StaticSource{pages: pages, page: 1}
}

// Collect implements pagination.Collector.
func (s *StaticSource) Collect(ctx context.Context, page int, bounds pagination.Bounds, excludeIDs map[string]bool) (pagination.PageResult, error) {
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()

	var items []pagination.WorkItem
	if page >= 1 && page <= len(s.pages) {
		items = s.pages[page-1]
	}

	kept, stop := filterByBounds(items, bounds, excludeIDs)

	return pagination.PageResult{
		Items:      kept,
		TotalPages: len(s.pages),
		Stop:       stop,
	}, nil
}

// HasNext implements pagination.Navigator.
func (s *StaticSource) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page < len(s.pages)
}

// Advance implements pagination.Navigator.
func (s *StaticSource) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page++
	return nil
}

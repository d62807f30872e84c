package source

import (
	"github.com/docpull/docpull/pkg/pagination"
)

// filterByBounds splits a listing page into the items inside the run
// bounds. Ordering keys compare lexically, which orders ISO-8601 date
// strings chronologically. An item with no ordering key is treated as
// in range: the filter fails open rather than silently dropping
// content.
//
// The returned stop flag is true when every item on the page sits below
// the lower bound; on a newest-first listing nothing further can be in
// range. A page whose keys cannot be determined never stops the run.
func filterByBounds(items []pagination.WorkItem, bounds pagination.Bounds, exclude map[string]bool) ([]pagination.WorkItem, bool) {
	kept := make([]pagination.WorkItem, 0, len(items))
	below := 0

	for _, item := range items {
		key := item.OrderingKey
		if key != "" && bounds.Lower != "" && key < bounds.Lower {
			below++
			continue
		}
		if key != "" && bounds.Upper != "" && key > bounds.Upper {
			continue
		}
		if exclude[item.ID] {
			continue
		}
		kept = append(kept, item)
	}

	stop := len(items) > 0 && below == len(items)
	return kept, stop
}

package pagination

import (
	"encoding/json"
	"fmt"
	"time"
)

// stateSchemaVersion guards the persisted record shape. Records with a
// different version are repaired to a fresh state on load.
const stateSchemaVersion = 1

// WorkItem is one unit of source content to acquire. Immutable once
// appended to a state's WorkItems.
type WorkItem struct {
	// ID is the stable dedup key.
	ID string `json:"id"`

	// SourceLocator is the opaque fetch target (typically a URL).
	SourceLocator string `json:"source_locator"`

	// TargetName is the desired output name for the stored document.
	TargetName string `json:"target_name"`

	// OrderingKey is compared against the run bounds for the stop
	// condition (typically a date string).
	OrderingKey string `json:"ordering_key"`
}

// Bounds are opaque ordering-key bounds supplied by the caller,
// immutable for the whole run. Interpretation belongs to the
// Collector; the coordinator only persists them.
type Bounds struct {
	Lower string `json:"lower"`
	Upper string `json:"upper"`
}

// State is the single unit of durable collection progress. It is
// persisted before every page advance and reconstructed on resume.
type State struct {
	Version      int        `json:"version"`
	CurrentPage  int        `json:"current_page"`
	TotalPages   int        `json:"total_pages"`
	CollectedIDs []string   `json:"collected_ids"`
	WorkItems    []WorkItem `json:"work_items"`
	LowerBound   string     `json:"lower_bound"`
	UpperBound   string     `json:"upper_bound"`
	IsRunning    bool       `json:"is_running"`
	IsComplete   bool       `json:"is_complete"`
	Cancelled    bool       `json:"cancelled"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	// seen indexes CollectedIDs for the idempotent merge. Rebuilt on
	// load, never serialized.
	seen map[string]bool
}

// newState creates a fresh running state for the given bounds.
func newState(bounds Bounds) *State {
	return &State{
		Version:      stateSchemaVersion,
		CurrentPage:  1,
		TotalPages:   1,
		CollectedIDs: []string{},
		WorkItems:    []WorkItem{},
		LowerBound:   bounds.Lower,
		UpperBound:   bounds.Upper,
		IsRunning:    true,
		seen:         make(map[string]bool),
	}
}

// decodeState parses and validates a persisted record. Any schema
// violation is returned as an error; the caller repairs by starting
// fresh rather than guessing at partial corruption.
func decodeState(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if err := st.validate(); err != nil {
		return nil, err
	}
	if err := st.rebuildIndex(); err != nil {
		return nil, err
	}
	return &st, nil
}

// encode serializes the state for persistence.
func (s *State) encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// validate checks the invariants of a loaded record.
func (s *State) validate() error {
	if s.Version != stateSchemaVersion {
		return fmt.Errorf("unsupported state version %d", s.Version)
	}
	if s.CurrentPage < 1 {
		return fmt.Errorf("current page %d out of range", s.CurrentPage)
	}
	if s.TotalPages < 1 {
		return fmt.Errorf("total pages %d out of range", s.TotalPages)
	}
	if len(s.CollectedIDs) != len(s.WorkItems) {
		return fmt.Errorf("collected ids (%d) and work items (%d) out of lockstep",
			len(s.CollectedIDs), len(s.WorkItems))
	}

	// isRunning, isComplete and cancelled are mutually exclusive;
	// all-false is the valid initial state.
	set := 0
	for _, f := range []bool{s.IsRunning, s.IsComplete, s.Cancelled} {
		if f {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("conflicting lifecycle flags (running=%v complete=%v cancelled=%v)",
			s.IsRunning, s.IsComplete, s.Cancelled)
	}

	return nil
}

// rebuildIndex reconstructs the dedup index from the persisted lists.
func (s *State) rebuildIndex() error {
	s.seen = make(map[string]bool, len(s.CollectedIDs))
	for _, id := range s.CollectedIDs {
		if id == "" {
			return fmt.Errorf("empty id in collected ids")
		}
		if s.seen[id] {
			return fmt.Errorf("duplicate id %q in collected ids", id)
		}
		s.seen[id] = true
	}
	for _, item := range s.WorkItems {
		if !s.seen[item.ID] {
			return fmt.Errorf("work item %q missing from collected ids", item.ID)
		}
	}
	return nil
}

// Merge appends items whose IDs are not yet collected, keeping
// CollectedIDs and WorkItems in lockstep. Re-merging a page after a
// crash is a no-op for already-known items. Returns the number of
// items actually added.
func (s *State) Merge(items []WorkItem) int {
	added := 0
	for _, item := range items {
		if item.ID == "" || s.seen[item.ID] {
			continue
		}
		s.seen[item.ID] = true
		s.CollectedIDs = append(s.CollectedIDs, item.ID)
		s.WorkItems = append(s.WorkItems, item)
		added++
	}
	return added
}

// Contains reports whether an id has already been collected.
func (s *State) Contains(id string) bool {
	return s.seen[id]
}

// CollectedIDSet returns a copy of the dedup set, passed to collectors
// so they can skip already-known items.
func (s *State) CollectedIDSet() map[string]bool {
	out := make(map[string]bool, len(s.seen))
	for id := range s.seen {
		out[id] = true
	}
	return out
}

// markComplete transitions the state to its terminal completed form.
func (s *State) markComplete(now time.Time) {
	s.IsRunning = false
	s.Cancelled = false
	s.IsComplete = true
	s.CompletedAt = &now
}

// markCancelled records a cooperative cancellation. The partial
// progress stays intact for a later resume.
func (s *State) markCancelled() {
	s.IsRunning = false
	s.IsComplete = false
	s.Cancelled = true
}

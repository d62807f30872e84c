package queue

import (
	"time"

	"github.com/docpull/docpull/pkg/pagination"
)

// TaskStatus is the lifecycle state of one queued work item.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusActive    TaskStatus = "active"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task wraps a work item for one queue run. Tasks live only for the
// duration of the run; they are not persisted, so a crash during the
// download phase restarts the whole phase over the collected items
// (duplicate detection at the storage layer makes that safe).
type Task struct {
	Item       pagination.WorkItem
	Retries    int
	Status     TaskStatus
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	LastErr    error
}

// CanRetry reports whether the task has retry budget left.
func (t *Task) CanRetry(maxRetries int) bool {
	return t.Retries < maxRetries
}

// TaskResult is the terminal record of one task, handed to callbacks
// and returned in the run result.
type TaskResult struct {
	Item    pagination.WorkItem
	Retries int
	// Err is the last error for failed tasks, nil for completed ones.
	Err error
}

// Result is the outcome of one queue run.
type Result struct {
	Completed []TaskResult
	Failed    []TaskResult
}

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	Total        int
	Queued       int
	Active       int
	Completed    int
	Failed       int
	IsProcessing bool
	IsPaused     bool
}

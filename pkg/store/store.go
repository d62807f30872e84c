package store

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotFound indicates the requested key does not exist in the store.
var ErrNotFound = errors.New("key not found")

// Store is the persistence capability used for collection state.
// Implementations must make Set durable before returning: a successful
// Set must survive a process crash.
type Store interface {
	// Get retrieves the raw value for a key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set durably stores the value under the key, replacing any
	// previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Prometheus metrics for store operations.
var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpull_store_operations_total",
			Help: "Total number of store operations by backend and operation",
		},
		[]string{"backend", "operation"}, // "redis"/"sqlite"/"memory", "get"/"set"/"remove"
	)

	storeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpull_store_errors_total",
			Help: "Total number of store operation errors by backend and operation",
		},
		[]string{"backend", "operation"},
	)
)

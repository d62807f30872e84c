// Package metrics provides the centralized Prometheus registry reference
// for the docpull pipeline. All metrics are defined in their respective
// packages (store, source, queue, bandwidth, fetch) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Store Metrics (pkg/store):
//   - docpull_store_operations_total{backend, operation} (Counter): Store operations by backend (redis, sqlite, memory) and operation (get, set, remove)
//   - docpull_store_errors_total{backend, operation} (Counter): Store operation errors
//
// Source Metrics (pkg/source):
//   - docpull_source_pages_total{outcome} (Counter): Listing pages fetched by outcome (ok, error, unreadable)
//   - docpull_source_page_duration_seconds (Histogram): Listing page request duration
//
// Queue Metrics (pkg/queue):
//   - docpull_queue_dispatches_total (Counter): Task dispatches including retry attempts
//   - docpull_queue_retries_total (Counter): Retries scheduled after failed attempts
//   - docpull_queue_tasks_completed_total (Counter): Tasks completed successfully
//   - docpull_queue_tasks_failed_total (Counter): Tasks failed permanently
//   - docpull_queue_active_tasks (Gauge): Currently executing tasks
//   - docpull_queue_throttle_waits_total (Counter): Dispatch waits for the rolling per-minute window
//   - docpull_queue_task_duration_seconds (Histogram): Task attempt duration
//
// Bandwidth Metrics (pkg/bandwidth):
//   - docpull_bandwidth_failure_ratio (Gauge): Recent task failure ratio
//   - docpull_bandwidth_profile_changes_total{quality} (Counter): Profile changes by selected quality
//   - docpull_bandwidth_max_concurrent (Gauge): Concurrency ceiling of the current profile
//
// Fetch Metrics (pkg/fetch):
//   - docpull_fetch_requests_total{status} (Counter): Document fetch requests by HTTP status
//   - docpull_fetch_errors_total{class} (Counter): Fetch errors by class (client, server, rate_limit, network)
//   - docpull_fetch_duration_seconds (Histogram): Document fetch duration
//   - docpull_fetch_bytes_total (Counter): Document payload bytes stored
//   - docpull_fetch_skipped_total (Counter): Fetches skipped because the document was already stored
//
// Example Prometheus Queries:
//
//   # Download Success Rate
//   sum(rate(docpull_queue_tasks_completed_total[5m])) /
//   (sum(rate(docpull_queue_tasks_completed_total[5m])) + sum(rate(docpull_queue_tasks_failed_total[5m])))
//
//   # Download Throughput (bytes/s)
//   rate(docpull_fetch_bytes_total[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(docpull_fetch_duration_seconds_bucket[5m]))
//
//   # Throttle Pressure
//   rate(docpull_queue_throttle_waits_total[5m])
//
//   # Unreadable Listing Pages
//   rate(docpull_source_pages_total{outcome="unreadable"}[15m])
//
//   # Degraded Bandwidth Profile
//   docpull_bandwidth_max_concurrent < 4

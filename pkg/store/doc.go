// Package store provides durable key/value persistence for collection state.
//
// Three backends implement the Store interface:
//
//   - RedisStore: shared state across processes via Redis
//   - SQLiteStore: single-file local durability (default for the CLI)
//   - MemoryStore: in-process map for tests and dry runs
//
// All backends share the same contract: Set is durable before it
// returns, Get on a missing key yields ErrNotFound, and Remove of a
// missing key is a no-op.
//
// # Basic Usage
//
//	st, err := store.NewSQLiteStore("/var/lib/docpull/state.db")
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	if err := st.Set(ctx, "collection:docs", data); err != nil {
//		return err
//	}
//
//	data, err := st.Get(ctx, "collection:docs")
//	if err == store.ErrNotFound {
//		// fresh run
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - docpull_store_operations_total{backend,operation} - Operations
//   - docpull_store_errors_total{backend,operation} - Failures
package store

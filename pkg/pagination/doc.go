// Package pagination drives resumable page-by-page collection of work
// items from sources whose page advance may destroy the execution
// context.
//
// The coordinator runs a collect -> persist -> navigate loop over an
// explicit State record. The record is written before every advance
// (the durability barrier), so a crash or context loss at any point is
// recovered by simply calling Run again: the coordinator loads the
// record and continues at its current page, and the idempotent merge
// makes re-collecting an already-seen page harmless.
//
// Example usage:
//
//	coord, err := pagination.NewCoordinator(st, source, source, pagination.Config{
//		StateKey: "collection:docs",
//	}, logger)
//	if err != nil {
//		return err
//	}
//
//	collection, err := coord.Run(ctx, pagination.Bounds{Lower: "2024-01-01"})
//	if err != nil {
//		return err
//	}
//	// hand collection.Items to the download queue, then:
//	_ = coord.Clear(ctx)
//
// The coordinator:
//   - Resumes mid-run and after-completion records transparently
//   - Deduplicates items by id across resumes (idempotent merge)
//   - Repairs corrupt persisted records to a fresh state
//   - Fails open on unreadable pages rather than truncating the run
//   - Persists cancellation so partial progress survives
package pagination

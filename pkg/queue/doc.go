// Package queue schedules the download phase over collected work
// items: bounded concurrency, a rolling per-minute dispatch ceiling,
// per-task retries with a delay, and cooperative pause/resume/stop.
//
// The queue is constructed over a caller-supplied Operation that
// fetches and stores one item. Settings typically come from the
// bandwidth monitor's current profile, and every attempt outcome is
// fed back to it through the OutcomeRecorder hook.
//
// Example usage:
//
//	q, err := queue.NewQueue(fetcher.Fetch, queue.Config{
//		MaxConcurrent:     profile.MaxConcurrent,
//		DelayBetween:      profile.DelayBetween,
//		ThrottlePerMinute: profile.ThrottlePerMinute,
//		MaxRetries:        2,
//		RetryDelay:        5 * time.Second,
//	}, queue.Callbacks{Recorder: monitor}, logger)
//	if err != nil {
//		return err
//	}
//
//	q.Add(collection.Items)
//	result, err := q.Start(ctx)
//
// Guarantees over any run:
//   - Active task count never exceeds MaxConcurrent
//   - Dispatches per rolling 60-second window never exceed
//     ThrottlePerMinute
//   - A task failure never aborts the batch; only PauseOnError or an
//     explicit Stop halts dispatch
//   - An exhausted task lands in the failed set exactly once and is
//     never re-dispatched
//
// Task state is not persisted: a crash during the download phase is
// recovered by re-running the whole phase over the collected items,
// relying on the fetch layer to skip documents already stored.
package queue

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/docpull/docpull/pkg/pagination"
)

// Prometheus metrics for queue operations.
var (
	queueDispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpull_queue_dispatches_total",
		Help: "Total task dispatches including retry attempts",
	})

	queueRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpull_queue_retries_total",
		Help: "Total retries scheduled after failed attempts",
	})

	queueCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpull_queue_tasks_completed_total",
		Help: "Total tasks completed successfully",
	})

	queueFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpull_queue_tasks_failed_total",
		Help: "Total tasks failed permanently",
	})

	queueActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docpull_queue_active_tasks",
		Help: "Number of currently executing tasks",
	})

	queueThrottleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpull_queue_throttle_waits_total",
		Help: "Times dispatch waited for the rolling per-minute window",
	})

	queueTaskDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docpull_queue_task_duration_seconds",
		Help:    "Task attempt duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// throttleWindow is the span of the rolling dispatch-rate window.
const throttleWindow = time.Minute

// ErrAlreadyProcessing is returned by Start while a run is in progress.
var ErrAlreadyProcessing = errors.New("queue already processing")

// Operation performs the fetch/store work for one item. Supplied by
// the caller at construction; the queue retries it per its config.
type Operation func(ctx context.Context, item pagination.WorkItem) error

// OutcomeRecorder receives every attempt outcome. The bandwidth
// monitor implements it; the feedback keeps its failure ratio live.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordFailure()
}

// Callbacks are optional observers of a queue run. All callbacks are
// invoked from the scheduling goroutine, never concurrently.
type Callbacks struct {
	// OnProgress receives a stats snapshot after every dispatch cycle
	// and every settled task.
	OnProgress func(Stats)

	// OnItemComplete fires when a task reaches a terminal status
	// (StatusCompleted or StatusFailed), with the last error for
	// failures. With RetryFailed configured it may fire twice for an
	// item that fails and is then swept again.
	OnItemComplete func(item pagination.WorkItem, status TaskStatus, err error)

	// OnComplete fires once processing drains, with the completed and
	// failed sets. Not invoked when the run is cancelled.
	OnComplete func(completed, failed []TaskResult)

	// Recorder receives every attempt outcome. Wire the bandwidth
	// monitor here.
	Recorder OutcomeRecorder
}

// Config holds queue configuration.
type Config struct {
	// MaxConcurrent caps simultaneously active tasks.
	MaxConcurrent int

	// DelayBetween is the pause between dispatch cycles.
	DelayBetween time.Duration

	// ThrottlePerMinute caps dispatches per rolling 60-second window.
	ThrottlePerMinute int

	// MaxRetries is how many times one task is re-attempted after its
	// first failure.
	MaxRetries int

	// RetryDelay is how long a failed task waits before re-entering
	// the pending list.
	RetryDelay time.Duration

	// PauseOnError pauses dispatch when a task fails permanently.
	// In-flight tasks finish; Resume restarts dispatch.
	PauseOnError bool

	// RetryFailed re-runs the whole failed set once more after the
	// first drain, before OnComplete.
	RetryFailed bool
}

// DefaultConfig returns defaults aligned with the normal bandwidth
// profile.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     4,
		DelayBetween:      2 * time.Second,
		ThrottlePerMinute: 10,
		MaxRetries:        2,
		RetryDelay:        5 * time.Second,
	}
}

// outcome is one finished attempt, reported by its worker goroutine.
type outcome struct {
	task *Task
	err  error
}

// Queue runs the download phase: it dispatches tasks through the
// caller-supplied operation subject to concurrency, rate and pacing
// limits, retries transient failures, and reports terminal results.
//
// All scheduling decisions and callbacks run on the goroutine that
// called Start; workers only execute the operation and report back.
type Queue struct {
	op     Operation
	cfg    Config
	cb     Callbacks
	logger zerolog.Logger
	now    func() time.Time
	window time.Duration

	mu            sync.Mutex
	pending       []*Task
	active        int
	retryWait     int
	total         int
	completedList []*Task
	failedList    []*Task
	processing    bool
	paused        bool
	stopped       bool
	failedRetried bool
	dispatches    []time.Time

	// done carries finished attempts back to the scheduler. One buffer
	// slot per possible in-flight worker, so workers never block.
	done chan outcome

	// wake is a capacity-1 nudge: Add, Resume, Stop and retry
	// re-enqueues all signal it.
	wake chan struct{}
}

// NewQueue creates a queue over the given operation. Zero
// MaxConcurrent and ThrottlePerMinute take the defaults; zero delays
// and retries are honored as configured.
func NewQueue(op Operation, cfg Config, cb Callbacks, logger zerolog.Logger) (*Queue, error) {
	if op == nil {
		return nil, fmt.Errorf("operation is required")
	}

	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.ThrottlePerMinute <= 0 {
		cfg.ThrottlePerMinute = def.ThrottlePerMinute
	}
	if cfg.DelayBetween < 0 {
		cfg.DelayBetween = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	return &Queue{
		op:     op,
		cfg:    cfg,
		cb:     cb,
		logger: logger,
		now:    time.Now,
		window: throttleWindow,
		done:   make(chan outcome, cfg.MaxConcurrent),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Add appends items to the pending list as fresh tasks. Items may be
// added before or during a run; ordering beyond FIFO best effort is
// not promised.
func (q *Queue) Add(items []pagination.WorkItem) {
	if len(items) == 0 {
		return
	}

	now := q.now()
	q.mu.Lock()
	for _, item := range items {
		q.pending = append(q.pending, &Task{
			Item:       item,
			Status:     StatusPending,
			EnqueuedAt: now,
		})
	}
	q.total += len(items)
	q.mu.Unlock()

	q.notify()
}

// Pause suspends dispatch after the current cycle. In-flight tasks
// finish; their results are still recorded.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()

	q.logger.Info().Msg("Queue paused")
	q.notify()
}

// Resume restarts dispatch after a pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()

	q.logger.Info().Msg("Queue resumed")
	q.notify()
}

// Stop clears the pending list and pauses the queue. In-flight tasks
// are allowed to finish and the running Start resolves once they (and
// any pending retry delays) have settled. Cleared tasks end neither
// completed nor failed.
func (q *Queue) Stop() {
	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	q.paused = true
	q.stopped = true
	q.mu.Unlock()

	q.logger.Info().Int("dropped", dropped).Msg("Queue stopped")
	q.notify()
}

// Stats returns a point-in-time snapshot. Tasks waiting out a retry
// delay count as queued.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

func (q *Queue) statsLocked() Stats {
	return Stats{
		Total:        q.total,
		Queued:       len(q.pending) + q.retryWait,
		Active:       q.active,
		Completed:    len(q.completedList),
		Failed:       len(q.failedList),
		IsProcessing: q.processing,
		IsPaused:     q.paused,
	}
}

// Start processes the queue until every pending, in-flight and
// retry-waiting task has settled, or the queue is stopped. The
// returned result holds the terminal sets; the error is non-nil only
// when a run is already in progress or the context is cancelled
// mid-run (the partial result is still returned). Individual task
// failures never fail the run.
//
// Start clears any pause/stop state left by a previous run.
func (q *Queue) Start(ctx context.Context) (Result, error) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return Result{}, ErrAlreadyProcessing
	}
	q.processing = true
	q.paused = false
	q.stopped = false
	q.failedRetried = false
	q.completedList = nil
	q.failedList = nil
	q.total = len(q.pending)
	queued := len(q.pending)
	q.mu.Unlock()

	start := q.now()
	logger := q.logger.With().Str("run_id", uuid.NewString()).Logger()

	logger.Info().
		Int("queued", queued).
		Int("max_concurrent", q.cfg.MaxConcurrent).
		Int("throttle_per_minute", q.cfg.ThrottlePerMinute).
		Dur("delay_between", q.cfg.DelayBetween).
		Msg("Download queue started")

	for {
		q.collectOutcomes(ctx, logger)

		q.mu.Lock()
		interrupted := ctx.Err() != nil
		idle := q.active == 0 && q.retryWait == 0
		drained := idle && len(q.pending) == 0

		if drained && !interrupted && !q.stopped &&
			q.cfg.RetryFailed && !q.failedRetried && len(q.failedList) > 0 {
			// Final sweep: the failed set gets exactly one more attempt
			// each (retry budgets are already spent).
			q.failedRetried = true
			for _, t := range q.failedList {
				t.Status = StatusPending
				q.pending = append(q.pending, t)
			}
			logger.Info().
				Int("requeued", len(q.failedList)).
				Msg("Retrying failed set once more")
			q.failedList = nil
			drained = false
		}

		if drained || (idle && (q.stopped || interrupted)) {
			q.processing = false
			result := Result{
				Completed: taskResults(q.completedList),
				Failed:    taskResults(q.failedList),
			}
			stopped := q.stopped
			q.mu.Unlock()

			if interrupted {
				logger.Warn().
					Int("completed", len(result.Completed)).
					Int("failed", len(result.Failed)).
					Msg("Queue run cancelled")
				return result, fmt.Errorf("queue cancelled: %w", ctx.Err())
			}

			logger.Info().
				Int("completed", len(result.Completed)).
				Int("failed", len(result.Failed)).
				Bool("stopped", stopped).
				Dur("duration", q.now().Sub(start)).
				Msg("Download queue complete")

			if q.cb.OnComplete != nil {
				q.cb.OnComplete(result.Completed, result.Failed)
			}
			return result, nil
		}

		canDispatch := !q.paused && !interrupted &&
			len(q.pending) > 0 && q.active < q.cfg.MaxConcurrent
		if !canDispatch {
			q.mu.Unlock()
			if interrupted {
				// Only in-flight work and retry timers remain; both
				// settle promptly without the context.
				q.waitSettle(ctx, logger)
			} else {
				q.waitEvent(ctx, logger)
			}
			continue
		}

		// Rate ceiling: wait out the rolling window before dispatching.
		if wait := q.throttleWaitLocked(); wait > 0 {
			q.mu.Unlock()
			queueThrottleWaitsTotal.Inc()
			logger.Debug().
				Dur("wait", wait).
				Msg("Dispatch rate ceiling reached - waiting for window")
			q.sleep(ctx, wait)
			continue
		}

		// Dispatch until the concurrency or rate ceiling, or until
		// pending is empty.
		dispatched := 0
		for len(q.pending) > 0 && q.active < q.cfg.MaxConcurrent && q.throttleWaitLocked() == 0 {
			t := q.pending[0]
			q.pending = q.pending[1:]
			t.Status = StatusActive
			t.StartedAt = q.now()
			q.active++
			q.dispatches = append(q.dispatches, q.now())
			queueDispatchesTotal.Inc()
			queueActiveTasks.Set(float64(q.active))
			go q.execute(ctx, t)
			dispatched++
		}
		stats := q.statsLocked()
		q.mu.Unlock()

		logger.Debug().
			Int("dispatched", dispatched).
			Int("active", stats.Active).
			Int("queued", stats.Queued).
			Msg("Dispatch cycle")
		q.progress(stats)

		// Wait for at least one task to settle, then pace the next
		// cycle.
		q.waitEvent(ctx, logger)
		q.sleep(ctx, q.cfg.DelayBetween)
	}
}

// execute runs one attempt on a worker goroutine and reports it.
func (q *Queue) execute(ctx context.Context, t *Task) {
	err := q.op(ctx, t.Item)
	q.done <- outcome{task: t, err: err}
}

// collectOutcomes settles every attempt already reported, without
// blocking.
func (q *Queue) collectOutcomes(ctx context.Context, logger zerolog.Logger) {
	for {
		select {
		case out := <-q.done:
			q.settle(ctx, out, logger)
		default:
			return
		}
	}
}

// waitEvent blocks until an attempt settles, the scheduler is nudged,
// or the context is cancelled.
func (q *Queue) waitEvent(ctx context.Context, logger zerolog.Logger) {
	select {
	case out := <-q.done:
		q.settle(ctx, out, logger)
	case <-q.wake:
	case <-ctx.Done():
	}
}

// waitSettle blocks until an attempt settles or the scheduler is
// nudged. Used once the context is cancelled, when ctx.Done would
// busy-loop.
func (q *Queue) waitSettle(ctx context.Context, logger zerolog.Logger) {
	select {
	case out := <-q.done:
		q.settle(ctx, out, logger)
	case <-q.wake:
	}
}

// settle records one finished attempt: completion, a scheduled retry,
// or a permanent failure. Runs on the scheduling goroutine only.
func (q *Queue) settle(ctx context.Context, out outcome, logger zerolog.Logger) {
	t := out.task
	t.FinishedAt = q.now()
	queueTaskDurationSeconds.Observe(t.FinishedAt.Sub(t.StartedAt).Seconds())

	cancelled := out.err != nil && ctx.Err() != nil &&
		(errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded))

	q.mu.Lock()
	q.active--
	queueActiveTasks.Set(float64(q.active))

	var (
		terminal bool
		status   TaskStatus
		pauseNow bool
	)

	switch {
	case out.err == nil:
		t.Status = StatusCompleted
		q.completedList = append(q.completedList, t)
		queueCompletedTotal.Inc()
		terminal, status = true, StatusCompleted

	case cancelled:
		// Attempt voided by run cancellation, not a task failure: the
		// item returns to pending and is simply not re-dispatched.
		t.Status = StatusPending
		t.LastErr = out.err
		q.pending = append(q.pending, t)

	case t.CanRetry(q.cfg.MaxRetries) && !q.stopped:
		t.Retries++
		t.Status = StatusPending
		t.LastErr = out.err
		q.retryWait++
		queueRetriesTotal.Inc()
		go q.requeueAfterDelay(ctx, t)

	default:
		t.Status = StatusFailed
		t.LastErr = out.err
		q.failedList = append(q.failedList, t)
		queueFailedTotal.Inc()
		terminal, status = true, StatusFailed
		if q.cfg.PauseOnError && !q.paused {
			q.paused = true
			pauseNow = true
		}
	}
	stats := q.statsLocked()
	q.mu.Unlock()

	if q.cb.Recorder != nil && !cancelled {
		if out.err == nil {
			q.cb.Recorder.RecordSuccess()
		} else {
			q.cb.Recorder.RecordFailure()
		}
	}

	switch {
	case cancelled:
		logger.Debug().
			Str("item", t.Item.ID).
			Msg("Attempt voided by cancellation")
	case out.err == nil:
		logger.Debug().
			Str("item", t.Item.ID).
			Int("retries", t.Retries).
			Msg("Task completed")
	case terminal:
		logger.Warn().
			Err(out.err).
			Str("item", t.Item.ID).
			Int("retries", t.Retries).
			Msg("Task failed permanently")
	default:
		logger.Warn().
			Err(out.err).
			Str("item", t.Item.ID).
			Int("retry", t.Retries).
			Int("max_retries", q.cfg.MaxRetries).
			Dur("retry_delay", q.cfg.RetryDelay).
			Msg("Task failed - retrying")
	}
	if pauseNow {
		logger.Warn().
			Str("item", t.Item.ID).
			Msg("Pausing queue after permanent failure")
	}

	if terminal && q.cb.OnItemComplete != nil {
		q.cb.OnItemComplete(t.Item, status, out.err)
	}
	q.progress(stats)
}

// requeueAfterDelay returns a failed task to the pending list once its
// retry delay elapses. Cancellation short-circuits the delay; the
// scheduler then abandons the task in pending.
func (q *Queue) requeueAfterDelay(ctx context.Context, t *Task) {
	timer := time.NewTimer(q.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	q.mu.Lock()
	q.retryWait--
	t.Status = StatusPending
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	q.notify()
}

// throttleWaitLocked returns how long dispatch must wait for the
// rolling window to admit another task, pruning expired entries.
// Caller holds mu.
func (q *Queue) throttleWaitLocked() time.Duration {
	cutoff := q.now().Add(-q.window)
	i := 0
	for i < len(q.dispatches) && q.dispatches[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		q.dispatches = append(q.dispatches[:0], q.dispatches[i:]...)
	}
	if len(q.dispatches) < q.cfg.ThrottlePerMinute {
		return 0
	}
	return q.dispatches[0].Add(q.window).Sub(q.now())
}

// sleep pauses the scheduler, returning early on cancellation.
func (q *Queue) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// notify nudges the scheduler without blocking.
func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) progress(stats Stats) {
	if q.cb.OnProgress != nil {
		q.cb.OnProgress(stats)
	}
}

// taskResults snapshots terminal tasks for handoff.
func taskResults(tasks []*Task) []TaskResult {
	out := make([]TaskResult, 0, len(tasks))
	for _, t := range tasks {
		r := TaskResult{Item: t.Item, Retries: t.Retries}
		if t.Status == StatusFailed {
			r.Err = t.LastErr
		}
		out = append(out, r)
	}
	return out
}

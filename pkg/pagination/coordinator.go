package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docpull/docpull/pkg/store"
)

// ErrPersistFailed is returned when the state write fails after the
// single retry. The coordinator never advances past an unrecorded page.
var ErrPersistFailed = errors.New("state persistence failed")

// CollectionError marks a page whose content could not be interpreted.
// The coordinator logs it, treats the page as yielding zero items and
// keeps going; it never aborts a run.
type CollectionError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("page %d unreadable: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CollectionError) Unwrap() error {
	return e.Err
}

// PageResult is what a Collector returns for one page.
type PageResult struct {
	// Items are the page's work items that fall inside the bounds.
	Items []WorkItem

	// TotalPages is the source's latest page-count estimate.
	// Zero means unknown; the coordinator keeps its previous estimate.
	TotalPages int

	// Stop signals that the remaining pages fall entirely outside the
	// bounds (e.g. older than the lower bound). A collector that cannot
	// determine any ordering key for a page must NOT set Stop; the run
	// fails open and continues rather than silently truncating.
	Stop bool
}

// Collector gathers the in-range work items of one page. excludeIDs
// carries the already-collected ids so an implementation can skip
// refetching known items; the coordinator deduplicates regardless.
type Collector interface {
	Collect(ctx context.Context, page int, bounds Bounds, excludeIDs map[string]bool) (PageResult, error)
}

// Navigator moves the source to the next page.
type Navigator interface {
	// HasNext reports whether another page exists. Only meaningful
	// after the current page has been collected.
	HasNext() bool

	// Advance moves to the next page. For sources where advancing
	// destroys the execution context it may never return; the state
	// persisted before the call is then the only record of progress,
	// and the embedding environment re-invokes Run after restart.
	Advance(ctx context.Context) error
}

// Collection is the outcome of a run: the deduplicated work items plus
// how the run ended.
type Collection struct {
	Items     []WorkItem
	Complete  bool
	Cancelled bool
}

// Config holds coordinator configuration.
type Config struct {
	// StateKey is the store key for this run's durable state.
	StateKey string

	// RunID correlates log lines of one run. Generated when empty.
	RunID string
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		StateKey: "collection:default",
	}
}

// Coordinator drives the collect -> persist -> navigate loop and
// reconstructs progress after context loss. All progress lives in the
// explicit State record; the coordinator itself holds no run state
// between invocations.
type Coordinator struct {
	store     store.Store
	collector Collector
	navigator Navigator
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

// NewCoordinator creates a coordinator over the given capabilities.
func NewCoordinator(st store.Store, collector Collector, navigator Navigator, cfg Config, logger zerolog.Logger) (*Coordinator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if collector == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if navigator == nil {
		return nil, fmt.Errorf("navigator is required")
	}
	if cfg.StateKey == "" {
		cfg.StateKey = DefaultConfig().StateKey
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	return &Coordinator{
		store:     st,
		collector: collector,
		navigator: navigator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run collects work items page by page until the collector signals
// stop, the navigator is exhausted, or the context is cancelled.
//
// A fresh invocation detects persisted progress itself: a completed
// record returns immediately (the consumer may have missed the
// signal), an in-progress record resumes at its current page. On
// cancellation the partial collection is returned together with the
// context error; the persisted record keeps the progress for a later
// resume.
func (c *Coordinator) Run(ctx context.Context, bounds Bounds) (*Collection, error) {
	logger := c.logger.With().
		Str("run_id", c.cfg.RunID).
		Str("state_key", c.cfg.StateKey).
		Logger()

	st, resumed, err := c.loadState(ctx, bounds, logger)
	if err != nil {
		return nil, err
	}

	// Resume-after-completion: the consumer takes the finished list,
	// no collector call is made.
	if st.IsComplete {
		logger.Info().
			Int("items", len(st.WorkItems)).
			Msg("Collection already complete")
		return &Collection{Items: st.WorkItems, Complete: true}, nil
	}

	if resumed {
		logger.Info().
			Int("current_page", st.CurrentPage).
			Int("total_pages", st.TotalPages).
			Int("items", len(st.WorkItems)).
			Bool("was_cancelled", st.Cancelled).
			Msg("Resuming collection")
	} else {
		logger.Info().
			Str("lower_bound", st.LowerBound).
			Str("upper_bound", st.UpperBound).
			Msg("Starting collection")
	}

	st.IsRunning = true
	st.IsComplete = false
	st.Cancelled = false

	for {
		if ctx.Err() != nil {
			return c.cancelRun(ctx, st, logger)
		}

		result, err := c.collectPage(ctx, st, logger)
		if err != nil {
			return nil, err
		}

		added := st.Merge(result.Items)
		if result.TotalPages > 0 {
			st.TotalPages = result.TotalPages
		}

		logger.Debug().
			Int("page", st.CurrentPage).
			Int("page_items", len(result.Items)).
			Int("added", added).
			Int("total_items", len(st.WorkItems)).
			Msg("Page collected")

		// Progress logging every 10 pages
		if st.CurrentPage%10 == 0 {
			logger.Info().
				Int("page", st.CurrentPage).
				Int("total_pages", st.TotalPages).
				Int("items", len(st.WorkItems)).
				Msg("Collection progress")
		}

		if ctx.Err() != nil {
			return c.cancelRun(ctx, st, logger)
		}

		if result.Stop || !c.navigator.HasNext() {
			st.markComplete(c.now())
			if err := c.persist(ctx, st, logger); err != nil {
				return nil, err
			}
			logger.Info().
				Int("pages", st.CurrentPage).
				Int("items", len(st.WorkItems)).
				Bool("stopped_by_bounds", result.Stop).
				Msg("Collection complete")
			return &Collection{Items: st.WorkItems, Complete: true}, nil
		}

		// Durability barrier: this write must complete before Advance,
		// because Advance may terminate the process and the record is
		// then the only way back.
		if err := c.persist(ctx, st, logger); err != nil {
			return nil, err
		}

		if err := c.navigator.Advance(ctx); err != nil {
			return nil, fmt.Errorf("advance from page %d: %w", st.CurrentPage, err)
		}

		st.CurrentPage++
	}
}

// Clear removes the persisted record. Called by the consumer once it
// has taken ownership of the completed work items, never by Run.
func (c *Coordinator) Clear(ctx context.Context) error {
	return c.store.Remove(ctx, c.cfg.StateKey)
}

// loadState fetches the persisted record, repairing invalid records to
// a fresh state. The bool reports whether an existing record was used.
func (c *Coordinator) loadState(ctx context.Context, bounds Bounds, logger zerolog.Logger) (*State, bool, error) {
	data, err := c.store.Get(ctx, c.cfg.StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return newState(bounds), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state: %w", err)
	}

	st, err := decodeState(data)
	if err != nil {
		// Corrupt records are repaired to the known-empty default, not
		// branched around.
		logger.Warn().
			Err(err).
			Msg("Persisted state invalid - repairing to fresh state")
		return newState(bounds), false, nil
	}

	if st.LowerBound != bounds.Lower || st.UpperBound != bounds.Upper {
		logger.Warn().
			Str("persisted_lower", st.LowerBound).
			Str("persisted_upper", st.UpperBound).
			Str("requested_lower", bounds.Lower).
			Str("requested_upper", bounds.Upper).
			Msg("Requested bounds differ from persisted run - keeping persisted bounds")
	}

	return st, true, nil
}

// collectPage invokes the collector for the current page. Collection
// errors are logged and yield an empty page (fail open); anything else
// aborts the run with the state still resumable.
func (c *Coordinator) collectPage(ctx context.Context, st *State, logger zerolog.Logger) (PageResult, error) {
	bounds := Bounds{Lower: st.LowerBound, Upper: st.UpperBound}

	result, err := c.collector.Collect(ctx, st.CurrentPage, bounds, st.CollectedIDSet())
	if err != nil {
		var collErr *CollectionError
		if errors.As(err, &collErr) {
			logger.Warn().
				Err(err).
				Int("page", st.CurrentPage).
				Msg("Page unreadable - treating as empty")
			return PageResult{}, nil
		}
		return PageResult{}, fmt.Errorf("collect page %d: %w", st.CurrentPage, err)
	}

	return result, nil
}

// cancelRun checkpoints the cancellation and hands back the partial
// collection. The write runs on a detached context; the cancelled one
// would refuse it.
func (c *Coordinator) cancelRun(ctx context.Context, st *State, logger zerolog.Logger) (*Collection, error) {
	st.markCancelled()

	if err := c.persist(context.WithoutCancel(ctx), st, logger); err != nil {
		logger.Error().
			Err(err).
			Msg("Failed to persist cancelled state")
	}

	logger.Warn().
		Int("page", st.CurrentPage).
		Int("items", len(st.WorkItems)).
		Msg("Collection cancelled")

	return &Collection{Items: st.WorkItems, Cancelled: true},
		fmt.Errorf("collection cancelled: %w", ctx.Err())
}

// persist writes the state record, retrying once before giving up.
func (c *Coordinator) persist(ctx context.Context, st *State, logger zerolog.Logger) error {
	data, err := st.encode()
	if err != nil {
		return err
	}

	if err := c.store.Set(ctx, c.cfg.StateKey, data); err != nil {
		logger.Warn().
			Err(err).
			Int("page", st.CurrentPage).
			Msg("State write failed - retrying once")

		if err := c.store.Set(ctx, c.cfg.StateKey, data); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}
	}

	return nil
}

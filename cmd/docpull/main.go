// Command docpull collects a bounded document listing from a paginated
// JSON API and downloads every document into a destination directory.
//
// Collection progress is checkpointed in a state store (SQLite file or
// Redis), so an interrupted run resumes where it stopped. Downloads run
// through the adaptive queue; already stored documents are skipped,
// which makes re-running a partially finished batch safe.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/docpull/docpull/pkg/bandwidth"
	"github.com/docpull/docpull/pkg/fetch"
	"github.com/docpull/docpull/pkg/logging"
	"github.com/docpull/docpull/pkg/pagination"
	"github.com/docpull/docpull/pkg/queue"
	"github.com/docpull/docpull/pkg/source"
	"github.com/docpull/docpull/pkg/store"
)

func main() {
	// .env files are optional; real environment variables win.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	sourceURL := flag.String("source-url", "", "listing service base URL")
	userAgent := flag.String("user-agent", "", "User-Agent header for all requests")
	destDir := flag.String("dest", "", "directory for downloaded documents")
	stateDSN := flag.String("state", "", "state store: redis:// URL or SQLite file path")
	stateKey := flag.String("state-key", "", "store key for this run's checkpoint")
	lower := flag.String("lower", "", "lower ordering-key bound (inclusive)")
	upper := flag.String("upper", "", "upper ordering-key bound (inclusive)")
	maxConcurrent := flag.Int("max-concurrent", 0, "maximum simultaneous downloads")
	throttle := flag.Int("throttle", 0, "download dispatch ceiling per rolling minute")
	maxRetries := flag.Int("max-retries", -1, "retries per document after the first failure")
	adaptive := flag.Bool("adaptive", true, "clamp queue settings to the bandwidth profile")
	metricsAddr := flag.String("metrics", "", "listen address for /metrics and /health (empty disables)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	pretty := flag.Bool("pretty", false, "human-readable console logs instead of JSON")
	fresh := flag.Bool("fresh", false, "discard the persisted checkpoint and start over")
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	applyEnv(&cfg)

	// Flags set on the command line override file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source-url":
			cfg.SourceURL = *sourceURL
		case "user-agent":
			cfg.UserAgent = *userAgent
		case "dest":
			cfg.DestDir = *destDir
		case "state":
			cfg.StateDSN = *stateDSN
		case "state-key":
			cfg.StateKey = *stateKey
		case "lower":
			cfg.LowerBound = *lower
		case "upper":
			cfg.UpperBound = *upper
		case "max-concurrent":
			cfg.MaxConcurrent = *maxConcurrent
		case "throttle":
			cfg.ThrottlePerMinute = *throttle
		case "max-retries":
			cfg.MaxRetries = *maxRetries
		case "adaptive":
			cfg.Adaptive = *adaptive
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "pretty":
			cfg.LogPretty = *pretty
		}
	})

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	// SIGINT/SIGTERM cancel the run; the coordinator checkpoints and the
	// queue lets in-flight downloads finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *fresh, logger); err != nil {
		logger.Fatal().Err(err).Msg("docpull failed")
	}
}

// run executes one collect-then-download pass. The checkpoint is
// cleared only after every document has been stored; on failure or
// cancellation it stays, and the next invocation resumes from it.
func run(ctx context.Context, cfg Config, fresh bool, logger zerolog.Logger) error {
	if cfg.SourceURL == "" {
		return fmt.Errorf("source URL is required (-source-url, DOCPULL_SOURCE_URL or config file)")
	}

	st, closeStore, err := openStore(ctx, cfg.StateDSN, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr, logger)
	}

	src, err := source.NewJSONSource(source.Config{
		BaseURL:   cfg.SourceURL,
		UserAgent: cfg.UserAgent,
	}, logging.NewLogger("source"))
	if err != nil {
		return err
	}

	coord, err := pagination.NewCoordinator(st, src, src, pagination.Config{
		StateKey: cfg.StateKey,
	}, logging.NewLogger("coordinator"))
	if err != nil {
		return err
	}

	if fresh {
		if err := coord.Clear(ctx); err != nil {
			return fmt.Errorf("clear checkpoint: %w", err)
		}
		logger.Info().Str("state_key", cfg.StateKey).Msg("Checkpoint cleared")
	}

	bounds := pagination.Bounds{Lower: cfg.LowerBound, Upper: cfg.UpperBound}
	collection, err := coord.Run(ctx, bounds)
	if err != nil {
		return err
	}

	if len(collection.Items) == 0 {
		logger.Info().Msg("Nothing to download")
		return coord.Clear(context.WithoutCancel(ctx))
	}

	logger.Info().
		Int("items", len(collection.Items)).
		Str("dest", cfg.DestDir).
		Msg("Collection finished - starting downloads")

	result, err := download(ctx, cfg, collection.Items)
	if err != nil {
		// Checkpoint stays: the next invocation short-circuits collection
		// and the fetcher skips documents already on disk.
		return err
	}

	for _, f := range result.Failed {
		event := logger.Error().
			Str("id", f.Item.ID).
			Str("url", f.Item.SourceLocator).
			Int("retries", f.Retries)
		var fetchErr *fetch.FetchError
		if errors.As(f.Err, &fetchErr) {
			event = event.
				Str("error_class", string(fetchErr.Class)).
				Bool("retryable", fetchErr.Retryable())
		}
		event.Err(f.Err).Msg("Document failed permanently")
	}

	logger.Info().
		Int("completed", len(result.Completed)).
		Int("failed", len(result.Failed)).
		Msg("Download phase complete")

	if len(result.Failed) > 0 {
		// Keep the checkpoint: a re-run retries only the failed
		// documents because the completed ones are skipped on disk.
		logger.Warn().
			Str("state_key", cfg.StateKey).
			Msg("Keeping checkpoint - re-run to retry failed documents")
		return fmt.Errorf("%d of %d documents failed", len(result.Failed), len(collection.Items))
	}

	if err := coord.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	logger.Info().Msg("Checkpoint cleared - batch complete")
	return nil
}

// download runs the adaptive queue over the collected items.
func download(ctx context.Context, cfg Config, items []pagination.WorkItem) (queue.Result, error) {
	sink, err := fetch.NewFileSink(cfg.DestDir)
	if err != nil {
		return queue.Result{}, err
	}

	fetcher, err := fetch.New(sink, fetch.Config{UserAgent: cfg.UserAgent}, logging.NewLogger("fetch"))
	if err != nil {
		return queue.Result{}, err
	}

	monitor := bandwidth.NewMonitor(bandwidth.DefaultConfig(), logging.NewLogger("bandwidth"))
	monitor.Start(ctx)

	settings := bandwidth.BandwidthProfile{
		MaxConcurrent:     cfg.MaxConcurrent,
		DelayBetween:      cfg.DelayBetween,
		ThrottlePerMinute: cfg.ThrottlePerMinute,
	}
	if cfg.Adaptive {
		settings = monitor.AdaptiveSettings(settings)
	}

	queueLogger := logging.NewLogger("queue")
	q, err := queue.NewQueue(fetcher.Fetch, queue.Config{
		MaxConcurrent:     settings.MaxConcurrent,
		DelayBetween:      settings.DelayBetween,
		ThrottlePerMinute: settings.ThrottlePerMinute,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		RetryFailed:       cfg.RetryFailed,
	}, queue.Callbacks{
		Recorder: monitor,
		OnProgress: func(s queue.Stats) {
			queueLogger.Debug().
				Int("queued", s.Queued).
				Int("active", s.Active).
				Int("completed", s.Completed).
				Int("failed", s.Failed).
				Msg("Queue progress")
		},
	}, queueLogger)
	if err != nil {
		return queue.Result{}, err
	}

	q.Add(items)
	return q.Start(ctx)
}

// openStore selects the state backend from the DSN: a redis:// or
// rediss:// URL opens Redis, anything else is treated as a SQLite path.
func openStore(ctx context.Context, dsn string, logger zerolog.Logger) (store.Store, func() error, error) {
	if strings.HasPrefix(dsn, "redis://") || strings.HasPrefix(dsn, "rediss://") {
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis state store")
		return store.NewRedisStore(client), client.Close, nil
	}

	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite state store: %w", err)
	}
	logger.Debug().Str("path", dsn).Msg("Opened SQLite state store")
	return s, s.Close, nil
}

// serveMetrics exposes Prometheus metrics and a health probe in the
// background. The pipeline works without it, so errors are only logged.
func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)

	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

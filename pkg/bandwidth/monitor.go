package bandwidth

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for bandwidth monitoring.
var (
	bandwidthFailureRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docpull_bandwidth_failure_ratio",
		Help: "Recent task failure ratio observed by the bandwidth monitor",
	})

	bandwidthProfileChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpull_bandwidth_profile_changes_total",
		Help: "Total number of profile changes by selected quality",
	}, []string{"quality"})

	bandwidthMaxConcurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docpull_bandwidth_max_concurrent",
		Help: "Concurrency ceiling of the currently selected profile",
	})
)

// minFailureSamples is the minimum number of recorded outcomes before
// the failure ratio can force the terrible tier. A single early failure
// must not collapse throughput.
const minFailureSamples = 4

// Config holds monitor configuration.
type Config struct {
	// Window is how long recorded outcomes count toward the failure ratio.
	Window time.Duration

	// AssessInterval is the period of timer-driven reassessment.
	AssessInterval time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Window:         2 * time.Minute,
		AssessInterval: 15 * time.Second,
	}
}

type outcome struct {
	at     time.Time
	failed bool
}

// Monitor tracks task outcomes and link reports and selects the
// current throughput profile. Safe for concurrent use; queue workers
// record outcomes while the assessment timer reads them.
type Monitor struct {
	mu      sync.Mutex
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
	history []outcome
	link    LinkSignal
	current Quality
	// pending is an upgrade candidate awaiting confirmation on the
	// next assessment. Downgrades skip this and apply immediately.
	pending Quality
}

// NewMonitor creates a monitor starting at the normal tier with no
// link report.
func NewMonitor(cfg Config, logger zerolog.Logger) *Monitor {
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Minute
	}
	if cfg.AssessInterval <= 0 {
		cfg.AssessInterval = 15 * time.Second
	}
	m := &Monitor{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		link:    LinkSignal{Type: LinkUnknown},
		current: QualityNormal,
	}
	bandwidthMaxConcurrent.Set(float64(ProfileFor(m.current).MaxConcurrent))
	return m
}

// Start runs timer-driven reassessment until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.AssessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Reassess()
			}
		}
	}()
}

// RecordSuccess records a completed task.
func (m *Monitor) RecordSuccess() {
	m.record(false)
}

// RecordFailure records a failed task attempt.
func (m *Monitor) RecordFailure() {
	m.record(true)
}

func (m *Monitor) record(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, outcome{at: m.now(), failed: failed})
	m.pruneLocked()
	bandwidthFailureRatio.Set(m.failureRatioLocked())
}

// pruneLocked drops outcomes older than the window. Caller holds mu.
func (m *Monitor) pruneLocked() {
	cutoff := m.now().Add(-m.cfg.Window)
	i := 0
	for i < len(m.history) && m.history[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.history = append(m.history[:0], m.history[i:]...)
	}
}

func (m *Monitor) failureRatioLocked() float64 {
	if len(m.history) == 0 {
		return 0
	}
	failures := 0
	for _, o := range m.history {
		if o.failed {
			failures++
		}
	}
	return float64(failures) / float64(len(m.history))
}

// FailureRatio returns the failure ratio over the rolling window.
// Returns 0 when no outcomes are recorded.
func (m *Monitor) FailureRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return m.failureRatioLocked()
}

// NetworkChanged records an externally reported link signal and
// reassesses immediately.
func (m *Monitor) NetworkChanged(link LinkSignal) {
	m.mu.Lock()
	m.link = link
	m.mu.Unlock()

	m.logger.Debug().
		Str("link_type", string(link.Type)).
		Float64("downlink_mbps", link.DownlinkMbps).
		Dur("rtt", link.RTT).
		Msg("Network change reported")

	m.Reassess()
}

// Reassess selects a tier from the current failure ratio and link
// report and publishes it subject to the hold-down rule: downgrades
// apply immediately, upgrades only after two consecutive selections.
// Called by the assessment timer and by NetworkChanged; exported so
// embedders can force an assessment.
func (m *Monitor) Reassess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	ratio := m.failureRatioLocked()
	selected := selectQuality(ratio, len(m.history), m.link)
	bandwidthFailureRatio.Set(ratio)

	if selected == m.current {
		m.pending = ""
		return
	}

	if selected.rank() > m.current.rank() && selected != m.pending {
		// Upgrade candidate: wait for confirmation on the next pass.
		m.pending = selected
		m.logger.Debug().
			Str("current", string(m.current)).
			Str("candidate", string(selected)).
			Float64("failure_ratio", ratio).
			Msg("Profile upgrade pending confirmation")
		return
	}

	m.publishLocked(selected, ratio)
}

// publishLocked switches the current profile. Caller holds mu.
func (m *Monitor) publishLocked(q Quality, ratio float64) {
	previous := m.current
	m.current = q
	m.pending = ""

	profile := ProfileFor(q)
	bandwidthProfileChangesTotal.WithLabelValues(string(q)).Inc()
	bandwidthMaxConcurrent.Set(float64(profile.MaxConcurrent))

	event := m.logger.Info()
	if q.rank() < previous.rank() {
		event = m.logger.Warn()
	}
	event.
		Str("from", string(previous)).
		Str("to", string(q)).
		Float64("failure_ratio", ratio).
		Int("max_concurrent", profile.MaxConcurrent).
		Dur("delay_between", profile.DelayBetween).
		Int("throttle_per_minute", profile.ThrottlePerMinute).
		Msg("Bandwidth profile changed")
}

// CurrentQuality returns the published tier.
func (m *Monitor) CurrentQuality() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentProfile returns the profile tuple of the published tier.
func (m *Monitor) CurrentProfile() BandwidthProfile {
	return ProfileFor(m.CurrentQuality())
}

// AdaptiveSettings clamps caller-requested settings to the current
// profile: concurrency and throttle never exceed the profile's
// ceilings, the delay never goes below the profile's floor. Zero or
// negative fields in base take the profile value.
func (m *Monitor) AdaptiveSettings(base BandwidthProfile) BandwidthProfile {
	profile := m.CurrentProfile()

	out := base
	if out.MaxConcurrent <= 0 || out.MaxConcurrent > profile.MaxConcurrent {
		out.MaxConcurrent = profile.MaxConcurrent
	}
	if out.ThrottlePerMinute <= 0 || out.ThrottlePerMinute > profile.ThrottlePerMinute {
		out.ThrottlePerMinute = profile.ThrottlePerMinute
	}
	if out.DelayBetween < profile.DelayBetween {
		out.DelayBetween = profile.DelayBetween
	}
	return out
}

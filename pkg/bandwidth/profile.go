// Package bandwidth tracks recent task failures and reported link
// quality, and maps them to a throughput profile. The download queue
// is parameterized by the selected profile and feeds task outcomes
// back into the monitor.
package bandwidth

import (
	"time"
)

// Quality names a throughput tier, ordered worst to best.
type Quality string

const (
	QualityTerrible  Quality = "terrible"
	QualityPoor      Quality = "poor"
	QualityNormal    Quality = "normal"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// rank orders qualities for upgrade/downgrade decisions.
func (q Quality) rank() int {
	switch q {
	case QualityTerrible:
		return 0
	case QualityPoor:
		return 1
	case QualityNormal:
		return 2
	case QualityGood:
		return 3
	case QualityExcellent:
		return 4
	default:
		return 2
	}
}

// LinkType classifies the reported link, as coarse speed classes.
type LinkType string

const (
	LinkHighSpeed   LinkType = "high-speed"
	LinkMediumSpeed LinkType = "medium-speed"
	LinkLowSpeed    LinkType = "low-speed"
	LinkCellular    LinkType = "cellular"
	LinkUnknown     LinkType = "unknown"
)

// LinkSignal is an externally reported link-quality observation.
type LinkSignal struct {
	Type         LinkType      `json:"type"`
	DownlinkMbps float64       `json:"downlink_mbps"`
	RTT          time.Duration `json:"rtt"`
}

// Thresholds for profile selection.
const (
	// FailureRatioTerrible selects the terrible tier when the recent
	// failure ratio exceeds this value, regardless of reported link speed.
	FailureRatioTerrible = 0.3

	// DownlinkHighMbps is the downlink above which a high-speed link
	// is considered excellent.
	DownlinkHighMbps = 10.0

	// DownlinkModerateMbps is the downlink above which a medium-speed
	// link is considered good.
	DownlinkModerateMbps = 2.0

	// RTTPoor marks a link poor when round-trip time exceeds this value.
	RTTPoor = 500 * time.Millisecond
)

// BandwidthProfile is a named tier of throughput settings.
type BandwidthProfile struct {
	// MaxConcurrent is the maximum number of simultaneously active tasks.
	MaxConcurrent int `json:"max_concurrent"`

	// DelayBetween is the pause between dispatch cycles.
	DelayBetween time.Duration `json:"delay_between"`

	// ThrottlePerMinute is the dispatch ceiling per rolling 60-second window.
	ThrottlePerMinute int `json:"throttle_per_minute"`
}

// profiles is the read-only tier table. Selection logic lives in the
// Monitor; these tuples never change at runtime.
var profiles = map[Quality]BandwidthProfile{
	QualityExcellent: {MaxConcurrent: 10, DelayBetween: 500 * time.Millisecond, ThrottlePerMinute: 20},
	QualityGood:      {MaxConcurrent: 6, DelayBetween: 1 * time.Second, ThrottlePerMinute: 15},
	QualityNormal:    {MaxConcurrent: 4, DelayBetween: 2 * time.Second, ThrottlePerMinute: 10},
	QualityPoor:      {MaxConcurrent: 2, DelayBetween: 3 * time.Second, ThrottlePerMinute: 5},
	QualityTerrible:  {MaxConcurrent: 1, DelayBetween: 5 * time.Second, ThrottlePerMinute: 2},
}

// ProfileFor returns the profile tuple for a quality tier.
func ProfileFor(q Quality) BandwidthProfile {
	if p, ok := profiles[q]; ok {
		return p
	}
	return profiles[QualityNormal]
}

// selectQuality maps the current failure ratio and link report to a
// tier. Priority order, first match wins; the failure ratio outranks
// any link report.
func selectQuality(failureRatio float64, samples int, link LinkSignal) Quality {
	if samples >= minFailureSamples && failureRatio > FailureRatioTerrible {
		return QualityTerrible
	}

	if link.Type == LinkHighSpeed && link.DownlinkMbps >= DownlinkHighMbps {
		return QualityExcellent
	}

	if link.Type == LinkHighSpeed ||
		(link.Type == LinkMediumSpeed && link.DownlinkMbps >= DownlinkModerateMbps) {
		return QualityGood
	}

	if link.Type == LinkMediumSpeed || link.Type == LinkLowSpeed {
		return QualityPoor
	}

	if link.Type == LinkCellular || link.RTT > RTTPoor {
		return QualityPoor
	}

	return QualityNormal
}

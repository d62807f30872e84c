package bandwidth

import (
	"testing"
	"time"
)

func TestSelectQuality(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		samples  int
		link     LinkSignal
		expected Quality
	}{
		{
			name:     "failure ratio outranks excellent link",
			ratio:    0.35,
			samples:  20,
			link:     LinkSignal{Type: LinkHighSpeed, DownlinkMbps: 20},
			expected: QualityTerrible,
		},
		{
			name:     "failure ratio at threshold does not trigger",
			ratio:    0.3,
			samples:  20,
			link:     LinkSignal{Type: LinkUnknown},
			expected: QualityNormal,
		},
		{
			name:     "too few samples ignores failure ratio",
			ratio:    1.0,
			samples:  minFailureSamples - 1,
			link:     LinkSignal{Type: LinkUnknown},
			expected: QualityNormal,
		},
		{
			name:     "high-speed with high downlink",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkHighSpeed, DownlinkMbps: 15},
			expected: QualityExcellent,
		},
		{
			name:     "high-speed with low downlink",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkHighSpeed, DownlinkMbps: 5},
			expected: QualityGood,
		},
		{
			name:     "medium-speed with moderate downlink",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkMediumSpeed, DownlinkMbps: 3},
			expected: QualityGood,
		},
		{
			name:     "medium-speed with weak downlink",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkMediumSpeed, DownlinkMbps: 1},
			expected: QualityPoor,
		},
		{
			name:     "low-speed",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkLowSpeed},
			expected: QualityPoor,
		},
		{
			name:     "cellular",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkCellular},
			expected: QualityPoor,
		},
		{
			name:     "unknown link with high round-trip time",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkUnknown, RTT: 600 * time.Millisecond},
			expected: QualityPoor,
		},
		{
			name:     "no signals",
			ratio:    0,
			samples:  0,
			link:     LinkSignal{Type: LinkUnknown},
			expected: QualityNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := selectQuality(tt.ratio, tt.samples, tt.link)
			if result != tt.expected {
				t.Errorf("selectQuality() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestProfileFor_UnknownQualityFallsBackToNormal(t *testing.T) {
	got := ProfileFor(Quality("bogus"))
	want := ProfileFor(QualityNormal)
	if got != want {
		t.Errorf("ProfileFor(bogus) = %+v, want normal tier %+v", got, want)
	}
}

func TestProfileRanges(t *testing.T) {
	ordered := []Quality{QualityTerrible, QualityPoor, QualityNormal, QualityGood, QualityExcellent}

	for _, q := range ordered {
		p := ProfileFor(q)
		if p.MaxConcurrent < 1 || p.MaxConcurrent > 10 {
			t.Errorf("%s: MaxConcurrent = %d, want within [1,10]", q, p.MaxConcurrent)
		}
		if p.DelayBetween < 500*time.Millisecond || p.DelayBetween > 5*time.Second {
			t.Errorf("%s: DelayBetween = %v, want within [500ms,5s]", q, p.DelayBetween)
		}
		if p.ThrottlePerMinute < 2 || p.ThrottlePerMinute > 20 {
			t.Errorf("%s: ThrottlePerMinute = %d, want within [2,20]", q, p.ThrottlePerMinute)
		}
	}

	// Better tiers never carry less throughput
	for i := 1; i < len(ordered); i++ {
		lower := ProfileFor(ordered[i-1])
		higher := ProfileFor(ordered[i])
		if higher.MaxConcurrent < lower.MaxConcurrent {
			t.Errorf("%s MaxConcurrent (%d) < %s (%d)", ordered[i], higher.MaxConcurrent, ordered[i-1], lower.MaxConcurrent)
		}
		if higher.DelayBetween > lower.DelayBetween {
			t.Errorf("%s DelayBetween (%v) > %s (%v)", ordered[i], higher.DelayBetween, ordered[i-1], lower.DelayBetween)
		}
		if higher.ThrottlePerMinute < lower.ThrottlePerMinute {
			t.Errorf("%s ThrottlePerMinute (%d) < %s (%d)", ordered[i], higher.ThrottlePerMinute, ordered[i-1], lower.ThrottlePerMinute)
		}
	}
}

func TestQualityRankOrdering(t *testing.T) {
	if !(QualityTerrible.rank() < QualityPoor.rank() &&
		QualityPoor.rank() < QualityNormal.rank() &&
		QualityNormal.rank() < QualityGood.rank() &&
		QualityGood.rank() < QualityExcellent.rank()) {
		t.Error("Quality ranks must order terrible < poor < normal < good < excellent")
	}
}

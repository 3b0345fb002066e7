package service

import (
	"testing"
	"time"

	"parcel-sorter/internal/features/congestion/domain"

	"github.com/stretchr/testify/assert"
)

var thresholds = domain.Thresholds{
	InFlightWarning:    50,
	InFlightSevere:     100,
	LatencyWarning:     3 * time.Second,
	LatencySevere:      6 * time.Second,
	SuccessRateWarning: 0.9,
	SuccessRateSevere:  0.7,
	MinSamples:         10,
}

func TestDetector_Detect(t *testing.T) {
	d := NewDetector(thresholds)

	tests := []struct {
		name     string
		snap     domain.MetricsSnapshot
		expected domain.CongestionLevel
	}{
		{"Idle", domain.MetricsSnapshot{SuccessRate: 1}, domain.LevelNormal},
		{"InFlightWarning", domain.MetricsSnapshot{InFlightParcels: 50, SuccessRate: 1}, domain.LevelWarning},
		{"InFlightSevere", domain.MetricsSnapshot{InFlightParcels: 150, SuccessRate: 1}, domain.LevelSevere},
		{"LatencyWarning", domain.MetricsSnapshot{AverageLatency: 4 * time.Second, SuccessRate: 1}, domain.LevelWarning},
		{"LatencySevere", domain.MetricsSnapshot{AverageLatency: 7 * time.Second, SuccessRate: 1}, domain.LevelSevere},
		{"SuccessRateWarning", domain.MetricsSnapshot{SuccessRate: 0.85, SampleCount: 20}, domain.LevelWarning},
		{"SuccessRateSevere", domain.MetricsSnapshot{SuccessRate: 0.5, SampleCount: 20}, domain.LevelSevere},
		{"SuccessRateTooFewSamples", domain.MetricsSnapshot{SuccessRate: 0.1, SampleCount: 3}, domain.LevelNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.Detect(tt.snap))
		})
	}
}

func TestDetector_WorstLevelWins(t *testing.T) {
	d := NewDetector(thresholds)

	// in-flight only reaches Warning but the success rate is Severe
	a := d.Assess(domain.MetricsSnapshot{InFlightParcels: 60, SuccessRate: 0.5, SampleCount: 20})
	assert.Equal(t, domain.LevelSevere, a.Level)
	assert.Contains(t, a.Reason, "success rate")
}

func TestDetector_PrecedenceWithinLevel(t *testing.T) {
	d := NewDetector(thresholds)

	a := d.Assess(domain.MetricsSnapshot{
		InFlightParcels: 120,
		AverageLatency:  10 * time.Second,
		SuccessRate:     0.1,
		SampleCount:     50,
	})
	assert.Equal(t, domain.LevelSevere, a.Level)
	assert.Contains(t, a.Reason, "in-flight")

	a = d.Assess(domain.MetricsSnapshot{AverageLatency: 4 * time.Second, SuccessRate: 0.8, SampleCount: 50})
	assert.Equal(t, domain.LevelWarning, a.Level)
	assert.Contains(t, a.Reason, "latency")
}

func TestCongestionLevel_String(t *testing.T) {
	assert.Equal(t, "Normal", domain.LevelNormal.String())
	assert.Equal(t, "Warning", domain.LevelWarning.String())
	assert.Equal(t, "Severe", domain.LevelSevere.String())
}

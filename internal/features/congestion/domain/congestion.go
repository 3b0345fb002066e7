package domain

import "time"

// CongestionLevel is the line-wide load assessment.
type CongestionLevel int

const (
	LevelNormal CongestionLevel = iota
	LevelWarning
	LevelSevere
)

func (l CongestionLevel) String() string {
	switch l {
	case LevelWarning:
		return "Warning"
	case LevelSevere:
		return "Severe"
	default:
		return "Normal"
	}
}

// MetricsSnapshot is the rolling view the detector works from.
type MetricsSnapshot struct {
	InFlightParcels int           `json:"in_flight_parcels"`
	SuccessRate     float64       `json:"success_rate"`
	AverageLatency  time.Duration `json:"average_latency"`
	MaxLatency      time.Duration `json:"max_latency"`
	SampleCount     int           `json:"sample_count"`
}

// Thresholds configure the detector. A metric at or beyond a threshold reaches that level;
// for the success rate, at or below.
type Thresholds struct {
	InFlightWarning    int
	InFlightSevere     int
	LatencyWarning     time.Duration
	LatencySevere      time.Duration
	SuccessRateWarning float64
	SuccessRateSevere  float64
	// MinSamples is how many completed parcels the success rate needs before it counts.
	MinSamples int
}

// Assessment is a level with the metric that caused it.
type Assessment struct {
	Level  CongestionLevel `json:"level"`
	Reason string          `json:"reason,omitempty"`
}

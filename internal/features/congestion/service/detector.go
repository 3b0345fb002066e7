package service

import (
	"fmt"

	"parcel-sorter/internal/features/congestion/domain"
)

// Detector maps a metrics snapshot to a congestion level.
type Detector struct {
	thresholds domain.Thresholds
}

// NewDetector creates a new Detector.
func NewDetector(thresholds domain.Thresholds) *Detector {
	return &Detector{thresholds: thresholds}
}

// Detect returns the congestion level of the snapshot.
func (d *Detector) Detect(snap domain.MetricsSnapshot) domain.CongestionLevel {
	return d.Assess(snap).Level
}

// Assess returns the worst level any metric reaches, and the first metric that
// reached it in the order in-flight count, latency, success rate.
func (d *Detector) Assess(snap domain.MetricsSnapshot) domain.Assessment {
	for _, level := range []domain.CongestionLevel{domain.LevelSevere, domain.LevelWarning} {
		if reason, hit := d.check(snap, level); hit {
			return domain.Assessment{Level: level, Reason: reason}
		}
	}
	return domain.Assessment{Level: domain.LevelNormal}
}

func (d *Detector) check(snap domain.MetricsSnapshot, level domain.CongestionLevel) (string, bool) {
	th := d.thresholds

	inFlight, latency, rate := th.InFlightWarning, th.LatencyWarning, th.SuccessRateWarning
	if level == domain.LevelSevere {
		inFlight, latency, rate = th.InFlightSevere, th.LatencySevere, th.SuccessRateSevere
	}

	if inFlight > 0 && snap.InFlightParcels >= inFlight {
		return fmt.Sprintf("in-flight parcels %d >= %d", snap.InFlightParcels, inFlight), true
	}
	if latency > 0 && snap.AverageLatency >= latency {
		return fmt.Sprintf("average latency %s >= %s", snap.AverageLatency, latency), true
	}
	if snap.SampleCount > 0 && snap.SampleCount >= th.MinSamples && snap.SuccessRate <= rate {
		return fmt.Sprintf("success rate %.2f <= %.2f", snap.SuccessRate, rate), true
	}
	return "", false
}

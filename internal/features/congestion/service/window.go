package service

import (
	"sync"
	"time"

	"parcel-sorter/internal/features/congestion/domain"

	"go.uber.org/atomic"
)

type sample struct {
	at      time.Time
	success bool
	latency time.Duration
}

// MetricsWindow tracks parcels in flight and the outcome of parcels completed
// within the last window.
type MetricsWindow struct {
	window   time.Duration
	inFlight atomic.Int64

	mu      sync.Mutex
	samples []sample
	now     func() time.Time
}

// NewMetricsWindow creates a window of the given length.
func NewMetricsWindow(window time.Duration) *MetricsWindow {
	return &MetricsWindow{
		window: window,
		now:    time.Now,
	}
}

// ParcelStarted counts a parcel entering the pipeline.
func (w *MetricsWindow) ParcelStarted() {
	w.inFlight.Inc()
}

// ParcelFinished records the outcome of a parcel and releases its in-flight slot.
func (w *MetricsWindow) ParcelFinished(success bool, latency time.Duration) {
	if w.inFlight.Dec() < 0 {
		w.inFlight.Store(0)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.samples = append(w.samples, sample{at: now, success: success, latency: latency})
	w.pruneLocked(now)
}

// InFlight returns the number of parcels currently in the pipeline.
func (w *MetricsWindow) InFlight() int {
	return int(w.inFlight.Load())
}

// Snapshot summarises the window. An empty window has a success rate of 1.
func (w *MetricsWindow) Snapshot() domain.MetricsSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(w.now())

	snap := domain.MetricsSnapshot{
		InFlightParcels: w.InFlight(),
		SuccessRate:     1,
		SampleCount:     len(w.samples),
	}
	if len(w.samples) == 0 {
		return snap
	}

	var ok int
	var total time.Duration
	for _, s := range w.samples {
		if s.success {
			ok++
		}
		total += s.latency
		if s.latency > snap.MaxLatency {
			snap.MaxLatency = s.latency
		}
	}
	snap.SuccessRate = float64(ok) / float64(len(w.samples))
	snap.AverageLatency = total / time.Duration(len(w.samples))
	return snap
}

func (w *MetricsWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

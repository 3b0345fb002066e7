package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsWindow_Empty(t *testing.T) {
	w := NewMetricsWindow(time.Minute)

	snap := w.Snapshot()
	assert.Equal(t, 0, snap.InFlightParcels)
	assert.Equal(t, 1.0, snap.SuccessRate)
	assert.Equal(t, 0, snap.SampleCount)
}

func TestMetricsWindow_Aggregates(t *testing.T) {
	w := NewMetricsWindow(time.Minute)

	for i := 0; i < 4; i++ {
		w.ParcelStarted()
	}
	w.ParcelFinished(true, 100*time.Millisecond)
	w.ParcelFinished(true, 300*time.Millisecond)
	w.ParcelFinished(false, 800*time.Millisecond)

	snap := w.Snapshot()
	assert.Equal(t, 1, snap.InFlightParcels)
	assert.Equal(t, 3, snap.SampleCount)
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate, 1e-9)
	assert.Equal(t, 400*time.Millisecond, snap.AverageLatency)
	assert.Equal(t, 800*time.Millisecond, snap.MaxLatency)
}

func TestMetricsWindow_Prunes(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	w := NewMetricsWindow(time.Minute)
	w.now = func() time.Time { return now }

	w.ParcelStarted()
	w.ParcelFinished(false, time.Second)

	now = now.Add(30 * time.Second)
	w.ParcelStarted()
	w.ParcelFinished(true, time.Second)
	assert.Equal(t, 2, w.Snapshot().SampleCount)

	now = now.Add(45 * time.Second)
	snap := w.Snapshot()
	assert.Equal(t, 1, snap.SampleCount)
	assert.Equal(t, 1.0, snap.SuccessRate)
}

func TestMetricsWindow_InFlightNeverNegative(t *testing.T) {
	w := NewMetricsWindow(time.Minute)
	w.ParcelFinished(true, 0)
	assert.Equal(t, 0, w.InFlight())
}

package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sorting "parcel-sorter/internal/features/sorting/domain"
	tracking "parcel-sorter/internal/features/tracking/domain"
)

var monitorNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// MockSweeper is a mock implementation of ports.ParcelSweeper.
type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) ProcessTimedOutParcel(ctx context.Context, parcelID uint64) sorting.SortingResult {
	args := m.Called(ctx, parcelID)
	return args.Get(0).(sorting.SortingResult)
}

func (m *MockSweeper) MarkLost(ctx context.Context, parcelID uint64) error {
	args := m.Called(ctx, parcelID)
	return args.Error(0)
}

func (m *MockSweeper) CleanupExpired(ctx context.Context, olderThan time.Time) int {
	args := m.Called(ctx, olderThan)
	return args.Int(0)
}

type stubLedger struct {
	active   []tracking.ParcelTrackingRecord
	timedOut []tracking.ParcelTrackingRecord
	cutoffs  []time.Time
}

func (l *stubLedger) GetActiveDetectedBefore(cutoff time.Time) []tracking.ParcelTrackingRecord {
	l.cutoffs = append(l.cutoffs, cutoff)
	return l.active
}

func (l *stubLedger) GetTimedOutBefore(cutoff time.Time) []tracking.ParcelTrackingRecord {
	l.cutoffs = append(l.cutoffs, cutoff)
	return l.timedOut
}

func monitorConfig() MonitorConfig {
	return MonitorConfig{
		ParcelTimeout:   time.Minute,
		LostAfter:       2 * time.Minute,
		Retention:       30 * time.Minute,
		MonitorSchedule: "@every 5s",
		CleanupSchedule: "@every 1m",
	}
}

func newTestMonitors(t *testing.T, ledger *stubLedger, sweeper *MockSweeper) *Monitors {
	t.Helper()
	m, err := NewMonitors(monitorConfig(), ledger, sweeper)
	require.NoError(t, err)
	m.now = func() time.Time { return monitorNow }
	return m
}

func TestNewMonitors_InvalidSchedules(t *testing.T) {
	cfg := monitorConfig()
	cfg.MonitorSchedule = "every now and then"
	cfg.CleanupSchedule = "@fortnightly"

	m, err := NewMonitors(cfg, &stubLedger{}, &MockSweeper{})
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Contains(t, err.Error(), "monitor schedule")
	assert.Contains(t, err.Error(), "cleanup schedule")
}

func TestMonitors_SweepTimeouts(t *testing.T) {
	ledger := &stubLedger{active: []tracking.ParcelTrackingRecord{
		tracking.NewRecord(1, monitorNow.Add(-2*time.Minute)),
		tracking.NewRecord(2, monitorNow.Add(-90*time.Second)),
	}}
	sweeper := new(MockSweeper)
	sweeper.On("ProcessTimedOutParcel", mock.Anything, uint64(1)).
		Return(sorting.SortingResult{ParcelID: 1, TargetChuteID: 999, IsExceptionRouted: true}).Once()
	sweeper.On("ProcessTimedOutParcel", mock.Anything, uint64(2)).
		Return(sorting.SortingResult{ParcelID: 2, TargetChuteID: 999, IsExceptionRouted: true}).Once()

	n := newTestMonitors(t, ledger, sweeper).SweepTimeouts(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, []time.Time{monitorNow.Add(-time.Minute)}, ledger.cutoffs)
	sweeper.AssertExpectations(t)
}

func TestMonitors_SweepTimeoutsStopsOnCancel(t *testing.T) {
	ledger := &stubLedger{active: []tracking.ParcelTrackingRecord{tracking.NewRecord(1, monitorNow)}}
	sweeper := new(MockSweeper)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newTestMonitors(t, ledger, sweeper).SweepTimeouts(ctx)

	sweeper.AssertNotCalled(t, "ProcessTimedOutParcel", mock.Anything, mock.Anything)
}

func TestMonitors_SweepLost(t *testing.T) {
	ledger := &stubLedger{timedOut: []tracking.ParcelTrackingRecord{
		tracking.NewRecord(1, monitorNow.Add(-5*time.Minute)),
		tracking.NewRecord(2, monitorNow.Add(-5*time.Minute)),
		tracking.NewRecord(3, monitorNow.Add(-5*time.Minute)),
	}}
	sweeper := new(MockSweeper)
	sweeper.On("MarkLost", mock.Anything, uint64(1)).Return(nil).Once()
	sweeper.On("MarkLost", mock.Anything, uint64(2)).
		Return(fmt.Errorf("%w: Sorted -> Lost", tracking.ErrInvalidTransition)).Once()
	sweeper.On("MarkLost", mock.Anything, uint64(3)).Return(errors.New("boom")).Once()

	n := newTestMonitors(t, ledger, sweeper).SweepLost(context.Background())

	assert.Equal(t, 1, n)
	assert.Equal(t, []time.Time{monitorNow.Add(-2 * time.Minute)}, ledger.cutoffs)
	sweeper.AssertExpectations(t)
}

func TestMonitors_SweepRetention(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("CleanupExpired", mock.Anything, monitorNow.Add(-30*time.Minute)).Return(4).Once()

	n := newTestMonitors(t, &stubLedger{}, sweeper).SweepRetention(context.Background())

	assert.Equal(t, 4, n)
	sweeper.AssertExpectations(t)
}

func TestMonitors_RunSchedulesSweeps(t *testing.T) {
	cfg := monitorConfig()
	cfg.MonitorSchedule = "@every 1s"
	cfg.CleanupSchedule = "@every 1s"
	sweeper := new(MockSweeper)
	cleaned := make(chan struct{}, 8)
	sweeper.On("CleanupExpired", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cleaned <- struct{}{} }).Return(0)

	m, err := NewMonitors(cfg, &stubLedger{}, sweeper)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-cleaned:
	case <-time.After(3 * time.Second):
		t.Fatal("retention sweep never ran")
	}
	cancel()
	require.NoError(t, <-done)
}

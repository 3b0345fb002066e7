package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-sorter/internal/core/broker"
	sorting "parcel-sorter/internal/features/sorting/domain"
)

const sensorTopic = "sorter/sensors/parcel-detected"

type recordingProcessor struct {
	mu      sync.Mutex
	parcels []uint64
	sensors []string
}

func (p *recordingProcessor) ProcessParcel(ctx context.Context, parcelID uint64, sensorID string, detectedAt *time.Time) sorting.SortingResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parcels = append(p.parcels, parcelID)
	p.sensors = append(p.sensors, sensorID)
	return sorting.SortingResult{ParcelID: parcelID, IsSuccess: true}
}

func (p *recordingProcessor) processed() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.parcels...)
}

type failingBroker struct{ broker.Memory }

func (*failingBroker) Subscribe(string, broker.Handler) error { return errors.New("not connected") }

func startSubscriber(t *testing.T, b broker.Broker, window time.Duration) (*SensorSubscriber, *recordingProcessor, context.CancelFunc) {
	t.Helper()
	proc := &recordingProcessor{}
	sub := NewSensorSubscriber(b, sensorTopic, proc, window)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, sub.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.ctx != nil
	}, time.Second, 5*time.Millisecond)
	return sub, proc, cancel
}

func publishReading(t *testing.T, b *broker.Memory, r sorting.SensorReading) {
	t.Helper()
	payload, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), sensorTopic, payload))
}

func TestSensorSubscriber_ProcessesTriggers(t *testing.T) {
	b := broker.NewMemory()
	sub, proc, _ := startSubscriber(t, b, time.Hour)

	require.Eventually(t, func() bool {
		publishReading(t, b, sorting.SensorReading{ParcelID: 1, SensorID: "PE-1", DetectedAt: time.Now()})
		return len(proc.processed()) == 1
	}, time.Second, 10*time.Millisecond)

	publishReading(t, b, sorting.SensorReading{ParcelID: 2, SensorID: "PE-2", DetectedAt: time.Now()})
	require.NoError(t, b.Publish(context.Background(), sensorTopic, []byte("{not json")))
	sub.Wait()

	assert.ElementsMatch(t, []uint64{1, 2}, proc.processed())
}

func TestSensorSubscriber_DebouncesSameSensor(t *testing.T) {
	sub, proc, _ := startSubscriber(t, broker.NewMemory(), 40*time.Millisecond)

	assert.True(t, sub.Accept(sorting.SensorReading{ParcelID: 10, SensorID: "PE-1"}))
	assert.False(t, sub.Accept(sorting.SensorReading{ParcelID: 11, SensorID: "PE-1"}))
	assert.True(t, sub.Accept(sorting.SensorReading{ParcelID: 12, SensorID: "PE-2"}))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, sub.Accept(sorting.SensorReading{ParcelID: 13, SensorID: "PE-1"}))

	sub.Wait()
	assert.ElementsMatch(t, []uint64{10, 12, 13}, proc.processed())
}

func TestSensorSubscriber_AnonymousTriggersAreNotDebounced(t *testing.T) {
	sub, proc, _ := startSubscriber(t, broker.NewMemory(), time.Hour)

	assert.True(t, sub.Accept(sorting.SensorReading{}))
	assert.True(t, sub.Accept(sorting.SensorReading{}))
	sub.Wait()

	ids := proc.processed()
	require.Len(t, ids, 2)
	assert.NotZero(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestSensorSubscriber_StopsOnCancel(t *testing.T) {
	sub, proc, cancel := startSubscriber(t, broker.NewMemory(), time.Hour)
	cancel()

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.closed
	}, time.Second, 5*time.Millisecond)

	assert.False(t, sub.Accept(sorting.SensorReading{ParcelID: 5, SensorID: "PE-9"}))
	assert.Empty(t, proc.processed())
}

func TestSensorSubscriber_SubscribeError(t *testing.T) {
	sub := NewSensorSubscriber(&failingBroker{}, sensorTopic, &recordingProcessor{}, time.Second)

	err := sub.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe "+sensorTopic)
}

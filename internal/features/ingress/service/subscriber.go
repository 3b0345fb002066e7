package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"parcel-sorter/internal/core/broker"
	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/ingress/ports"
	sorting "parcel-sorter/internal/features/sorting/domain"
)

// SensorSubscriber turns photo-eye triggers into sorting runs.
type SensorSubscriber struct {
	broker    broker.Broker
	topic     string
	processor ports.ParcelProcessor
	recent    *ttlcache.Cache[string, uint64]
	log       *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	wg     sync.WaitGroup
	closed bool
}

// NewSensorSubscriber debounces retriggers of the same sensor within window.
func NewSensorSubscriber(b broker.Broker, topic string, processor ports.ParcelProcessor, window time.Duration) *SensorSubscriber {
	return &SensorSubscriber{
		broker:    b,
		topic:     topic,
		processor: processor,
		recent: ttlcache.New(
			ttlcache.WithTTL[string, uint64](window),
			ttlcache.WithDisableTouchOnHit[string, uint64](),
		),
		log: logger.Named("ingress"),
	}
}

// Run subscribes and blocks until ctx is done, then waits for in-flight parcels.
func (s *SensorSubscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.broker.Subscribe(s.topic, s.handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	go s.recent.Start()
	s.log.Info("Listening for sensor triggers", zap.String("topic", s.topic))

	<-ctx.Done()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.recent.Stop()
	s.wg.Wait()
	return nil
}

func (s *SensorSubscriber) handle(payload []byte) {
	var reading sorting.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		s.log.Warn("Discarding malformed sensor payload", zap.Error(err))
		return
	}
	s.Accept(reading)
}

// Accept starts sorting for reading unless it is a retrigger of a sensor that
// fired within the debounce window. It reports whether a run was started.
func (s *SensorSubscriber) Accept(reading sorting.SensorReading) bool {
	desc := sorting.NewDescriptorFromSensor(reading)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx == nil {
		s.log.Debug("Ingress not running, trigger dropped", zap.Uint64("parcel_id", desc.ParcelID))
		return false
	}

	if desc.SensorID != "" {
		if prev, found := s.recent.GetOrSet(desc.SensorID, desc.ParcelID); found {
			s.log.Warn("DuplicateTriggerDetected",
				zap.String("sensor_id", desc.SensorID),
				zap.Uint64("parcel_id", desc.ParcelID),
				zap.Uint64("first_parcel_id", prev.Value()),
			)
			return false
		}
	}

	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.processor.ProcessParcel(ctx, desc.ParcelID, desc.SensorID, &desc.IngressTime)
		s.log.Debug("Parcel run finished",
			zap.Uint64("parcel_id", res.ParcelID),
			zap.Bool("is_success", res.IsSuccess),
			zap.Int64("actual_chute_id", res.ActualChuteID),
		)
	}()
	return true
}

// Wait blocks until every started run has returned.
func (s *SensorSubscriber) Wait() {
	s.wg.Wait()
}

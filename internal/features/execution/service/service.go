package service

import (
	"context"
	"fmt"
	"time"

	"parcel-sorter/internal/core/events"
	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/execution/domain"
	"parcel-sorter/internal/features/execution/ports"
	topology "parcel-sorter/internal/features/topology/domain"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Bus topics.
const (
	TopicSegmentFailed = "segment_failed"
	TopicPathSwitched  = "path_switched"
	TopicTimingAnomaly = "timing_anomaly"
)

// Buses groups the execution event streams.
type Buses struct {
	SegmentFailed *events.Bus[domain.SegmentFailedEvent]
	PathSwitched  *events.Bus[domain.PathSwitchedEvent]
	TimingAnomaly *events.Bus[domain.TimingAnomalyEvent]
}

// NewBuses creates the three buses with the same buffer and drop callback.
func NewBuses(buffer int, onDrop events.DropFunc) *Buses {
	return &Buses{
		SegmentFailed: events.NewBus[domain.SegmentFailedEvent](TopicSegmentFailed, buffer, onDrop),
		PathSwitched:  events.NewBus[domain.PathSwitchedEvent](TopicPathSwitched, buffer, onDrop),
		TimingAnomaly: events.NewBus[domain.TimingAnomalyEvent](TopicTimingAnomaly, buffer, onDrop),
	}
}

// Close closes every bus.
func (b *Buses) Close() {
	b.SegmentFailed.Close()
	b.PathSwitched.Close()
	b.TimingAnomaly.Close()
}

// Service runs paths and switches to the fallback path when a segment fails.
type Service struct {
	executor ports.Executor
	failures ports.FailureHandler
	driver   ports.DiverterDriver
	buses    *Buses
	now      func() time.Time
}

// NewService creates a new execution Service.
func NewService(executor ports.Executor, failures ports.FailureHandler, driver ports.DiverterDriver, buses *Buses) *Service {
	return &Service{
		executor: executor,
		failures: failures,
		driver:   driver,
		buses:    buses,
		now:      time.Now,
	}
}

// Execute runs path for parcelID. A failed segment is never retried in place:
// a fresh backup path to the fallback chute runs from segment 1. A failed
// backup is final. Reroutes replace the running path until the parcel passes
// its last segment or switches to the backup; reroutes is closed on return.
func (s *Service) Execute(ctx context.Context, parcelID uint64, path *topology.SwitchingPath, reroutes ports.Reroutes) domain.PathExecutionResult {
	log := logger.Named("execution").With(zap.Uint64("parcel_id", parcelID))
	if reroutes != nil {
		defer reroutes.Close()
	}

	current := path
	intended := path.TargetChuteID
	onBackup := false
	timedOut := false
	completed := 0

	for {
		res := s.executor.Execute(ctx, current, reroutes)
		completed += res.SegmentsCompleted
		res.SegmentsCompleted = completed
		res.TargetChuteID = intended
		res.TimedOut = timedOut
		s.publishAnomalies(parcelID, res.Anomalies)

		if next := res.Superseded; next != nil {
			reason := domain.SwitchReasonReroute
			if next.Timeout {
				reason = domain.SwitchReasonTimeout
				timedOut = true
			} else {
				intended = next.Path.TargetChuteID
			}
			log.Info("Path superseded",
				zap.String("reason", reason),
				zap.Int64("from_chute", current.TargetChuteID),
				zap.Int64("to_chute", next.Path.TargetChuteID),
				zap.Int("segments_completed", completed),
			)
			s.publishSwitch(parcelID, current, next.Path, reason)
			current = next.Path
			continue
		}

		if res.IsSuccess || res.Cancelled {
			res.UsedBackup = onBackup
			return res
		}

		s.buses.SegmentFailed.Publish(domain.SegmentFailedEvent{
			ParcelID:              parcelID,
			FailedSegment:         *res.FailedSegment,
			OriginalTargetChuteID: current.TargetChuteID,
			Reason:                res.FailureReason,
			OccurredAt:            s.now(),
		})

		if onBackup {
			log.Error("Backup path failed", zap.String("reason", res.FailureReason))
			res.UsedBackup = true
			res.FailureReason = fmt.Sprintf("backup path to chute %d failed: %s", current.TargetChuteID, res.FailureReason)
			return res
		}

		backup := s.failures.BackupPath(current)
		if backup == nil {
			log.Error("No backup path to fallback chute",
				zap.Int64("fallback_chute", current.FallbackChuteID),
				zap.String("reason", res.FailureReason),
			)
			res.Unhandled = true
			res.FailureReason = fmt.Sprintf("fallback chute %d unreachable after: %s", current.FallbackChuteID, res.FailureReason)
			return res
		}

		log.Warn("Segment failed, switching to backup path",
			zap.Int("segment", res.FailedSegment.SequenceNumber),
			zap.String("diverter_id", res.FailedSegment.DiverterID),
			zap.Int64("backup_chute", backup.TargetChuteID),
		)
		s.publishSwitch(parcelID, current, backup, domain.SwitchReasonSegmentFailed)

		current = backup
		onBackup = true
		// a parcel on its fallback path is not rerouted again
		if reroutes != nil {
			reroutes.Close()
			reroutes = nil
		}
	}
}

// ResetDiverters homes every diverter to straight. All failures are reported.
func (s *Service) ResetDiverters(ctx context.Context, diverterIDs []string) error {
	var err error
	for _, id := range diverterIDs {
		if resetErr := s.driver.Reset(ctx, id); resetErr != nil {
			err = multierr.Append(err, fmt.Errorf("reset %s: %w", id, resetErr))
		}
	}
	return err
}

func (s *Service) publishSwitch(parcelID uint64, from, to *topology.SwitchingPath, reason string) {
	s.buses.PathSwitched.Publish(domain.PathSwitchedEvent{
		ParcelID:              parcelID,
		OriginalTargetChuteID: from.TargetChuteID,
		BackupTargetChuteID:   to.TargetChuteID,
		BackupSegmentCount:    len(to.Segments),
		Reason:                reason,
		OccurredAt:            s.now(),
	})
}

func (s *Service) publishAnomalies(parcelID uint64, anomalies []domain.TimingAnomaly) {
	for _, a := range anomalies {
		s.buses.TimingAnomaly.Publish(domain.TimingAnomalyEvent{
			ParcelID:   parcelID,
			DiverterID: a.Segment.DiverterID,
			Sequence:   a.Segment.SequenceNumber,
			Budget:     a.Segment.TTL,
			Elapsed:    a.Elapsed,
			OccurredAt: s.now(),
		})
	}
}

package service

import (
	"context"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/core/metrics"

	"go.uber.org/zap"
)

// Observe logs execution events and counts path switches until ctx ends or
// the buses are closed.
func Observe(ctx context.Context, buses *Buses, collector *metrics.Collector) {
	log := logger.Named("execution.events")

	failed, cancelFailed := buses.SegmentFailed.Subscribe()
	defer cancelFailed()
	switched, cancelSwitched := buses.PathSwitched.Subscribe()
	defer cancelSwitched()
	anomalies, cancelAnomalies := buses.TimingAnomaly.Subscribe()
	defer cancelAnomalies()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-failed:
			if !ok {
				return
			}
			log.Warn("SegmentFailed",
				zap.Uint64("parcel_id", ev.ParcelID),
				zap.Int("segment", ev.FailedSegment.SequenceNumber),
				zap.String("diverter_id", ev.FailedSegment.DiverterID),
				zap.Int64("original_target_chute", ev.OriginalTargetChuteID),
				zap.String("reason", ev.Reason),
			)
		case ev, ok := <-switched:
			if !ok {
				return
			}
			if collector != nil {
				collector.RecordPathSwitch(ev.Reason)
			}
			log.Info("PathSwitched",
				zap.Uint64("parcel_id", ev.ParcelID),
				zap.Int64("original_target_chute", ev.OriginalTargetChuteID),
				zap.Int64("backup_target_chute", ev.BackupTargetChuteID),
				zap.String("reason", ev.Reason),
			)
		case ev, ok := <-anomalies:
			if !ok {
				return
			}
			log.Warn("TimingAnomaly",
				zap.Uint64("parcel_id", ev.ParcelID),
				zap.String("diverter_id", ev.DiverterID),
				zap.Int("segment", ev.Sequence),
				zap.Duration("budget", ev.Budget),
				zap.Duration("elapsed", ev.Elapsed),
			)
		}
	}
}

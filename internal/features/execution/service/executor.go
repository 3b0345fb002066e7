package service

import (
	"context"
	"fmt"
	"time"

	"parcel-sorter/internal/features/execution/domain"
	"parcel-sorter/internal/features/execution/ports"
	topology "parcel-sorter/internal/features/topology/domain"
)

// DriverExecutor issues one SetAngle per segment in sequence order.
// Segment TTLs are soft deadlines: an overrun is recorded, never aborted.
type DriverExecutor struct {
	driver ports.DiverterDriver
	now    func() time.Time
}

// NewDriverExecutor creates a new DriverExecutor.
func NewDriverExecutor(driver ports.DiverterDriver) *DriverExecutor {
	return &DriverExecutor{driver: driver, now: time.Now}
}

// Execute runs path. Cancellation and reroutes are checked before every segment.
func (e *DriverExecutor) Execute(ctx context.Context, path *topology.SwitchingPath, reroutes ports.Reroutes) domain.PathExecutionResult {
	result := domain.PathExecutionResult{TargetChuteID: path.TargetChuteID}

	for i := range path.Segments {
		seg := path.Segments[i]

		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			result.FailureReason = fmt.Sprintf("cancelled before segment %d: %v", seg.SequenceNumber, err)
			return result
		}
		if reroutes != nil {
			if next := reroutes.Next(i == len(path.Segments)-1); next != nil {
				result.Superseded = next
				return result
			}
		}

		angle, err := domain.AngleFor(seg.TargetDirection)
		if err != nil {
			result.FailedSegment = &seg
			result.FailureReason = err.Error()
			return result
		}

		started := e.now()
		err = e.driver.SetAngle(ctx, seg.DiverterID, angle)
		elapsed := e.now().Sub(started)

		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				result.FailureReason = fmt.Sprintf("cancelled during segment %d: %v", seg.SequenceNumber, ctx.Err())
				return result
			}
			result.FailedSegment = &seg
			result.FailureReason = fmt.Sprintf("diverter %s: %v", seg.DiverterID, err)
			return result
		}

		if seg.TTL > 0 && elapsed > seg.TTL {
			result.Anomalies = append(result.Anomalies, domain.TimingAnomaly{Segment: seg, Elapsed: elapsed})
		}
		result.SegmentsCompleted++
	}

	result.IsSuccess = true
	result.ActualChuteID = path.TargetChuteID
	return result
}

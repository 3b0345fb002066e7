package service

import (
	"context"
	"errors"
	"fmt"

	"parcel-sorter/internal/core/logger"
	topologyports "parcel-sorter/internal/features/topology/ports"
	trackingdomain "parcel-sorter/internal/features/tracking/domain"
	trackingports "parcel-sorter/internal/features/tracking/ports"

	"go.uber.org/zap"
)

var (
	// ErrChuteUnreachable is returned when no path leads to the requested chute.
	ErrChuteUnreachable = errors.New("chute unreachable")
	// ErrNotReroutable is returned for parcels whose execution no longer takes reroutes.
	ErrNotReroutable = errors.New("parcel is not reroutable")
)

// Replanner compiles a new path for an accepted chute change and hands it to
// the parcel's executor.
type Replanner struct {
	generator  topologyports.PathGenerator
	tracking   trackingports.TrackingService
	executions *Executions
}

// NewReplanner creates a new Replanner.
func NewReplanner(generator topologyports.PathGenerator, tracking trackingports.TrackingService, executions *Executions) *Replanner {
	return &Replanner{
		generator:  generator,
		tracking:   tracking,
		executions: executions,
	}
}

// Replan hands a path to chuteID to the parcel's executor and waits until it
// is taken. Errors wrap reroute.ErrTooLate when the parcel passed its last
// reroute point. Tracking is only moved back to Assigned while the parcel has
// not started routing.
func (r *Replanner) Replan(ctx context.Context, parcelID uint64, chuteID int64) error {
	path := r.generator.GeneratePath(chuteID)
	if path == nil {
		return fmt.Errorf("%w: %d", ErrChuteUnreachable, chuteID)
	}

	log := logger.Named("sorting").With(zap.Uint64("parcel_id", parcelID), zap.Int64("chute", chuteID))

	ticket, err := r.executions.Push(parcelID, path)
	if err != nil {
		return err
	}
	if err := ticket.Wait(ctx); err != nil {
		state, _ := r.executions.State(parcelID)
		log.Info("Reroute not taken by executor", zap.String("state", string(state)), zap.Error(err))
		return fmt.Errorf("parcel %d: %w", parcelID, err)
	}

	record, err := r.tracking.GetByID(parcelID)
	if err == nil && (record.Status == trackingdomain.StatusDetected || record.Status == trackingdomain.StatusAssigned) {
		if _, err := r.tracking.UpdateAssigned(parcelID, chuteID); err != nil {
			log.Warn("Failed to record reroute in tracking", zap.Error(err))
		}
	}
	return nil
}

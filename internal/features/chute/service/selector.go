package service

import (
	"context"
	"fmt"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/chute/domain"
	"parcel-sorter/internal/features/chute/ports"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// SelectorConfig holds the per-mode settings.
type SelectorConfig struct {
	ExceptionChuteID  int64
	FixedChuteID      int64
	AvailableChuteIDs []int64
	AssignmentTimeout time.Duration
	MaxRetries        int
}

// Selector resolves a chute for each parcel. Every mode degrades to the
// exception chute; Failure is only returned when no exception chute exists.
type Selector struct {
	cfg      SelectorConfig
	upstream ports.UpstreamRouter
	cursor   atomic.Uint64
}

// NewSelector creates a new Selector. upstream may be nil when Formal mode is never used.
func NewSelector(cfg SelectorConfig, upstream ports.UpstreamRouter) *Selector {
	available := make([]int64, len(cfg.AvailableChuteIDs))
	copy(available, cfg.AvailableChuteIDs)
	cfg.AvailableChuteIDs = available

	return &Selector{cfg: cfg, upstream: upstream}
}

// SelectChute dispatches on the sorting mode.
func (s *Selector) SelectChute(ctx context.Context, sc domain.SortingContext) domain.ChuteSelectionResult {
	if s.cfg.ExceptionChuteID <= 0 {
		return domain.Failure("no exception chute configured")
	}

	switch sc.SortingMode {
	case domain.ModeFormal:
		return s.selectFormal(ctx, sc.ParcelID)
	case domain.ModeFixedChute:
		if s.cfg.FixedChuteID > 0 {
			return domain.Success(s.cfg.FixedChuteID)
		}
		return s.exception("no fixed chute configured")
	case domain.ModeRoundRobin:
		n := uint64(len(s.cfg.AvailableChuteIDs))
		if n == 0 {
			return s.exception("no chutes available for round robin")
		}
		i := s.cursor.Inc() - 1
		return domain.Success(s.cfg.AvailableChuteIDs[i%n])
	default:
		return s.exception(fmt.Sprintf("unknown sorting mode %q", sc.SortingMode))
	}
}

func (s *Selector) selectFormal(ctx context.Context, parcelID uint64) domain.ChuteSelectionResult {
	if s.upstream == nil {
		return s.exception("no upstream router configured")
	}

	log := logger.Named("chute").With(zap.Uint64("parcel_id", parcelID))

	var last *domain.RoutingError
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return s.exception(fmt.Sprintf("cancelled waiting for upstream: %v", ctx.Err()))
		}

		assignment, err := s.assignOnce(ctx, parcelID)
		if err == nil {
			if !assignment.IsSuccess || assignment.ChuteID <= 0 {
				return s.exception(fmt.Sprintf("upstream returned invalid chute %d", assignment.ChuteID))
			}
			log.Debug("Upstream assigned chute",
				zap.Int64("chute_id", assignment.ChuteID),
				zap.String("source", assignment.Source),
				zap.Int("attempt", attempt+1),
			)
			return domain.Success(assignment.ChuteID)
		}

		last = domain.AsRoutingError(err)
		log.Warn("Upstream assignment failed",
			zap.String("kind", string(last.Kind)),
			zap.Int("attempt", attempt+1),
			zap.Error(last),
		)
		if !last.Retryable() {
			break
		}
	}

	return s.exception(last.Error())
}

func (s *Selector) assignOnce(ctx context.Context, parcelID uint64) (domain.ChuteAssignment, error) {
	timeout := s.cfg.AssignmentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	assignment, err := s.upstream.AssignChute(callCtx, parcelID)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return assignment, domain.NewRoutingError(domain.RoutingTimeout, err)
	}
	return assignment, err
}

func (s *Selector) exception(reason string) domain.ChuteSelectionResult {
	return domain.Exception(s.cfg.ExceptionChuteID, reason)
}

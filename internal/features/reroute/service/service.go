package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/reroute/domain"
	"parcel-sorter/internal/features/reroute/ports"

	"go.uber.org/zap"
)

const lockStripes = 64

// ChuteChangeCommand asks for a parcel to be sent to another chute.
type ChuteChangeCommand struct {
	ParcelID         uint64
	RequestedChuteID int64
	// RequestedAt defaults to now.
	RequestedAt time.Time
}

// ChuteChangeResult answers a ChuteChangeCommand.
type ChuteChangeResult struct {
	IsSuccess        bool                      `json:"is_success"`
	Outcome          domain.ChuteChangeOutcome `json:"outcome"`
	EffectiveChuteID int64                     `json:"effective_chute_id"`
	Message          string                    `json:"message"`
}

// Service owns route plans. Every read-modify-write of a plan holds the
// parcel's lock stripe.
type Service struct {
	repo      ports.PlanRepository
	replanner ports.Replanner
	cutoff    time.Duration
	now       func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewService creates a new reroute Service. cutoff is the replan deadline
// relative to plan creation.
func NewService(repo ports.PlanRepository, replanner ports.Replanner, cutoff time.Duration) *Service {
	return &Service{
		repo:      repo,
		replanner: replanner,
		cutoff:    cutoff,
		now:       time.Now,
	}
}

func (s *Service) lock(parcelID uint64) func() {
	m := &s.locks[parcelID%lockStripes]
	m.Lock()
	return m.Unlock
}

// CreatePlan stores a new plan for a freshly detected parcel.
func (s *Service) CreatePlan(ctx context.Context, parcelID uint64, createdAt time.Time) error {
	defer s.lock(parcelID)()
	return s.repo.Save(ctx, domain.NewRoutePlan(parcelID, createdAt, s.cutoff))
}

// AssignTarget records the selected chute and returns the chute the parcel
// should actually go to, which differs when a change was accepted first.
func (s *Service) AssignTarget(ctx context.Context, parcelID uint64, chuteID int64) (int64, error) {
	defer s.lock(parcelID)()

	plan, err := s.repo.Get(ctx, parcelID)
	if err != nil {
		return chuteID, err
	}
	next := plan.AssignInitial(chuteID, s.now())
	if err := s.repo.Save(ctx, next); err != nil {
		return chuteID, err
	}
	return next.CurrentTargetChuteID, nil
}

// Transition moves a plan to status.
func (s *Service) Transition(ctx context.Context, parcelID uint64, status domain.PlanStatus) error {
	defer s.lock(parcelID)()

	plan, err := s.repo.Get(ctx, parcelID)
	if err != nil {
		return err
	}
	next, err := plan.WithStatus(status, s.now())
	if err != nil {
		return err
	}
	return s.repo.Save(ctx, next)
}

// Get returns the current plan.
func (s *Service) Get(ctx context.Context, parcelID uint64) (*domain.RoutePlan, error) {
	return s.repo.Get(ctx, parcelID)
}

// Forget removes a plan.
func (s *Service) Forget(ctx context.Context, parcelID uint64) error {
	defer s.lock(parcelID)()
	return s.repo.Delete(ctx, parcelID)
}

// RequestChuteChange applies cmd to the parcel's plan. The replanner runs only
// for Accepted outcomes and the plan is saved only when it succeeds; a failed
// replan is reported as a rejection. The stripe stays locked while the
// replanner waits for the executor.
func (s *Service) RequestChuteChange(ctx context.Context, cmd ChuteChangeCommand) (ChuteChangeResult, error) {
	if cmd.RequestedAt.IsZero() {
		cmd.RequestedAt = s.now()
	}

	log := logger.Named("reroute").With(
		zap.Uint64("parcel_id", cmd.ParcelID),
		zap.Int64("requested_chute", cmd.RequestedChuteID),
	)

	defer s.lock(cmd.ParcelID)()

	plan, err := s.repo.Get(ctx, cmd.ParcelID)
	if err != nil {
		return ChuteChangeResult{}, err
	}

	next, outcome := plan.TryApplyChuteChange(cmd.RequestedChuteID, cmd.RequestedAt)
	if outcome != domain.OutcomeAccepted {
		log.Info("Chute change not applied", zap.String("outcome", string(outcome)), zap.String("status", string(plan.Status)))
		return ChuteChangeResult{
			Outcome:          outcome,
			EffectiveChuteID: plan.CurrentTargetChuteID,
			Message:          describe(outcome, plan),
		}, nil
	}

	if err := s.replanner.Replan(ctx, cmd.ParcelID, cmd.RequestedChuteID); err != nil {
		rejected := rejection(err)
		log.Warn("Replan failed, keeping current plan", zap.String("outcome", string(rejected)), zap.Error(err))
		return ChuteChangeResult{
			Outcome:          rejected,
			EffectiveChuteID: plan.CurrentTargetChuteID,
			Message:          fmt.Sprintf("replan failed: %v", err),
		}, nil
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return ChuteChangeResult{}, fmt.Errorf("failed to save route plan: %w", err)
	}

	log.Info("Chute change accepted", zap.Int("change_count", next.ChangeCount))
	return ChuteChangeResult{
		IsSuccess:        true,
		Outcome:          outcome,
		EffectiveChuteID: next.CurrentTargetChuteID,
		Message:          fmt.Sprintf("parcel rerouted to chute %d", next.CurrentTargetChuteID),
	}, nil
}

// rejection maps a replan error to the outcome reported to the caller.
func rejection(err error) domain.ChuteChangeOutcome {
	switch {
	case errors.Is(err, domain.ErrTooLate):
		return domain.OutcomeRejectedTooLate
	case errors.Is(err, domain.ErrExceptionRouted):
		return domain.OutcomeIgnoredExceptionRouted
	default:
		return domain.OutcomeRejectedInvalidState
	}
}

func describe(outcome domain.ChuteChangeOutcome, plan *domain.RoutePlan) string {
	switch outcome {
	case domain.OutcomeIgnoredAlreadyCompleted:
		return "parcel already sorted"
	case domain.OutcomeIgnoredExceptionRouted:
		return "parcel already routed to the exception chute"
	case domain.OutcomeRejectedTooLate:
		return fmt.Sprintf("replan deadline %s has passed", plan.LastReplanDeadline.Format(time.RFC3339Nano))
	default:
		return fmt.Sprintf("plan in status %s cannot change chute", plan.Status)
	}
}

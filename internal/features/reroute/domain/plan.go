package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPlanNotFound is returned when no route plan exists for a parcel.
	ErrPlanNotFound = errors.New("route plan not found")
	// ErrPlanTerminal is returned when a finished plan is asked to change status.
	ErrPlanTerminal = errors.New("route plan is terminal")
	// ErrTooLate is returned when the parcel passed its last reroute point.
	ErrTooLate = errors.New("parcel passed its last reroute point")
	// ErrExceptionRouted is returned when the parcel was sent to the exception chute first.
	ErrExceptionRouted = errors.New("parcel is routed to the exception chute")
)

// PlanStatus is the lifecycle of a route plan.
type PlanStatus string

const (
	PlanCreated         PlanStatus = "Created"
	PlanExecuting       PlanStatus = "Executing"
	PlanCompleted       PlanStatus = "Completed"
	PlanExceptionRouted PlanStatus = "ExceptionRouted"
	PlanFailed          PlanStatus = "Failed"
	PlanDeprecated      PlanStatus = "Deprecated"
)

// IsTerminal reports whether the plan can no longer change.
func (s PlanStatus) IsTerminal() bool {
	switch s {
	case PlanCompleted, PlanExceptionRouted, PlanFailed, PlanDeprecated:
		return true
	}
	return false
}

// ChuteChangeOutcome is the closed set of answers to a chute change request.
type ChuteChangeOutcome string

const (
	OutcomeAccepted                ChuteChangeOutcome = "Accepted"
	OutcomeIgnoredAlreadyCompleted ChuteChangeOutcome = "IgnoredAlreadyCompleted"
	OutcomeIgnoredExceptionRouted  ChuteChangeOutcome = "IgnoredExceptionRouted"
	OutcomeRejectedInvalidState    ChuteChangeOutcome = "RejectedInvalidState"
	OutcomeRejectedTooLate         ChuteChangeOutcome = "RejectedTooLate"
)

// RoutePlan is the routing intent for one parcel.
type RoutePlan struct {
	ParcelID             uint64     `json:"parcel_id"`
	InitialTargetChuteID int64      `json:"initial_target_chute_id"`
	CurrentTargetChuteID int64      `json:"current_target_chute_id"`
	Status               PlanStatus `json:"status"`
	LastReplanDeadline   time.Time  `json:"last_replan_deadline"`
	ChangeCount          int        `json:"change_count"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewRoutePlan creates a plan with no target yet. Chute changes are accepted
// until createdAt + replanCutoff.
func NewRoutePlan(parcelID uint64, createdAt time.Time, replanCutoff time.Duration) RoutePlan {
	return RoutePlan{
		ParcelID:           parcelID,
		Status:             PlanCreated,
		LastReplanDeadline: createdAt.Add(replanCutoff),
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
}

// AssignInitial records the selected chute. An already accepted change keeps
// precedence over the selection.
func (p RoutePlan) AssignInitial(chuteID int64, at time.Time) RoutePlan {
	p.InitialTargetChuteID = chuteID
	if p.ChangeCount == 0 {
		p.CurrentTargetChuteID = chuteID
	}
	p.UpdatedAt = at
	return p
}

// TryApplyChuteChange evaluates, in order: completed, exception routed,
// other invalid states, deadline.
func (p RoutePlan) TryApplyChuteChange(requestedChuteID int64, requestedAt time.Time) (RoutePlan, ChuteChangeOutcome) {
	switch p.Status {
	case PlanCompleted:
		return p, OutcomeIgnoredAlreadyCompleted
	case PlanExceptionRouted:
		return p, OutcomeIgnoredExceptionRouted
	case PlanFailed, PlanDeprecated:
		return p, OutcomeRejectedInvalidState
	}

	if requestedChuteID <= 0 {
		return p, OutcomeRejectedInvalidState
	}

	if requestedAt.After(p.LastReplanDeadline) {
		return p, OutcomeRejectedTooLate
	}

	p.CurrentTargetChuteID = requestedChuteID
	p.ChangeCount++
	p.UpdatedAt = requestedAt
	return p, OutcomeAccepted
}

// WithStatus moves the plan to status. Terminal plans only accept their own status.
func (p RoutePlan) WithStatus(status PlanStatus, at time.Time) (RoutePlan, error) {
	if p.Status.IsTerminal() && p.Status != status {
		return p, fmt.Errorf("%w: %s -> %s", ErrPlanTerminal, p.Status, status)
	}
	p.Status = status
	p.UpdatedAt = at
	return p, nil
}

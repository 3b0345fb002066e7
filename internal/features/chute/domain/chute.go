package domain

import (
	"errors"
	"fmt"
	"time"
)

// SortingMode selects how a target chute is chosen.
type SortingMode string

const (
	ModeFormal     SortingMode = "Formal"
	ModeFixedChute SortingMode = "FixedChute"
	ModeRoundRobin SortingMode = "RoundRobin"
)

// SortingContext is the input of a chute selection.
type SortingContext struct {
	ParcelID    uint64
	SortingMode SortingMode
	DetectedAt  time.Time
}

// SelectionKind is the closed set of selection outcomes.
type SelectionKind string

const (
	SelectionSuccess   SelectionKind = "Success"
	SelectionException SelectionKind = "Exception"
	SelectionFailure   SelectionKind = "Failure"
)

// ChuteSelectionResult is always one of Success, Exception or Failure.
type ChuteSelectionResult struct {
	Kind    SelectionKind `json:"kind"`
	ChuteID int64         `json:"chute_id,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

func Success(chuteID int64) ChuteSelectionResult {
	return ChuteSelectionResult{Kind: SelectionSuccess, ChuteID: chuteID}
}

func Exception(chuteID int64, reason string) ChuteSelectionResult {
	return ChuteSelectionResult{Kind: SelectionException, ChuteID: chuteID, Reason: reason}
}

func Failure(message string) ChuteSelectionResult {
	return ChuteSelectionResult{Kind: SelectionFailure, Reason: message}
}

// ChuteAssignment is the upstream answer for one parcel.
type ChuteAssignment struct {
	ParcelID   uint64    `json:"parcel_id"`
	ChuteID    int64     `json:"chute_id"`
	IsSuccess  bool      `json:"is_success"`
	Source     string    `json:"source,omitempty"`
	IsFallback bool      `json:"is_fallback,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// RoutingErrorKind classifies upstream failures.
type RoutingErrorKind string

const (
	RoutingTimeout         RoutingErrorKind = "Timeout"
	RoutingUnavailable     RoutingErrorKind = "Unavailable"
	RoutingInvalidResponse RoutingErrorKind = "InvalidResponse"
)

// RoutingError is returned by upstream routers.
type RoutingError struct {
	Kind RoutingErrorKind
	Err  error
}

func (e *RoutingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upstream routing %s", e.Kind)
	}
	return fmt.Sprintf("upstream routing %s: %v", e.Kind, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *RoutingError) Retryable() bool {
	return e.Kind == RoutingTimeout || e.Kind == RoutingUnavailable
}

// NewRoutingError builds a RoutingError.
func NewRoutingError(kind RoutingErrorKind, err error) *RoutingError {
	return &RoutingError{Kind: kind, Err: err}
}

// AsRoutingError classifies any error, treating unknown ones as Unavailable.
func AsRoutingError(err error) *RoutingError {
	var re *RoutingError
	if errors.As(err, &re) {
		return re
	}
	return NewRoutingError(RoutingUnavailable, err)
}

package domain

import (
	"errors"
	"fmt"
	"time"
)

// ParcelStatus is the lifecycle stage of a parcel.
type ParcelStatus string

const (
	StatusDetected ParcelStatus = "Detected"
	StatusAssigned ParcelStatus = "Assigned"
	StatusRouting  ParcelStatus = "Routing"
	StatusSorted   ParcelStatus = "Sorted"
	StatusTimedOut ParcelStatus = "TimedOut"
	StatusLost     ParcelStatus = "Lost"
)

var (
	// ErrParcelNotTracked is returned when no record exists for the parcel.
	ErrParcelNotTracked = errors.New("parcel not tracked")
	// ErrParcelAlreadyTracked is returned when creating a record twice.
	ErrParcelAlreadyTracked = errors.New("parcel already tracked")
	// ErrInvalidTransition is returned when a status change would go backwards or leave a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// forward is the position of each status on the happy path.
var forward = map[ParcelStatus]int{
	StatusDetected: 0,
	StatusAssigned: 1,
	StatusRouting:  2,
	StatusSorted:   3,
}

// ParcelTrackingRecord is the ledger entry of one parcel. Transitions return a
// new value and leave the receiver untouched.
type ParcelTrackingRecord struct {
	ParcelID      uint64       `json:"parcel_id"`
	Status        ParcelStatus `json:"status"`
	DetectedAt    time.Time    `json:"detected_at"`
	AssignedAt    *time.Time   `json:"assigned_at,omitempty"`
	TargetChuteID *int64       `json:"target_chute_id,omitempty"`
	LastSeenAt    *time.Time   `json:"last_seen_at,omitempty"`
	SortedAt      *time.Time   `json:"sorted_at,omitempty"`
	ActualChuteID *int64       `json:"actual_chute_id,omitempty"`
}

// NewRecord starts a record in Detected.
func NewRecord(parcelID uint64, detectedAt time.Time) ParcelTrackingRecord {
	return ParcelTrackingRecord{
		ParcelID:   parcelID,
		Status:     StatusDetected,
		DetectedAt: detectedAt,
	}
}

// IsTerminal reports whether the record can no longer change.
func (r ParcelTrackingRecord) IsTerminal() bool {
	return r.Status == StatusSorted || r.Status == StatusLost
}

// IsActive reports whether the parcel is still travelling normally.
func (r ParcelTrackingRecord) IsActive() bool {
	return r.Status == StatusDetected || r.Status == StatusAssigned || r.Status == StatusRouting
}

// Assign records the target chute. Allowed from Detected, and from Assigned for a reroute.
func (r ParcelTrackingRecord) Assign(chuteID int64, at time.Time) (ParcelTrackingRecord, error) {
	if err := r.advance(StatusAssigned); err != nil {
		return r, err
	}
	r.Status = StatusAssigned
	r.AssignedAt = &at
	r.TargetChuteID = &chuteID
	return r, nil
}

// Route marks the parcel on its path, or refreshes LastSeenAt when already routing.
func (r ParcelTrackingRecord) Route(at time.Time) (ParcelTrackingRecord, error) {
	if err := r.advance(StatusRouting); err != nil {
		return r, err
	}
	r.Status = StatusRouting
	r.LastSeenAt = &at
	return r, nil
}

// Sort records the chute the parcel actually reached. A timed out parcel that
// was still delivered to the exception chute is sorted too.
func (r ParcelTrackingRecord) Sort(actualChuteID int64, at time.Time) (ParcelTrackingRecord, error) {
	if r.Status != StatusTimedOut {
		if err := r.advance(StatusSorted); err != nil {
			return r, err
		}
	}
	r.Status = StatusSorted
	r.SortedAt = &at
	r.ActualChuteID = &actualChuteID
	return r, nil
}

// TimeOut moves an active parcel to TimedOut.
func (r ParcelTrackingRecord) TimeOut(at time.Time) (ParcelTrackingRecord, error) {
	if !r.IsActive() {
		return r, r.invalid(StatusTimedOut)
	}
	r.Status = StatusTimedOut
	r.LastSeenAt = &at
	return r, nil
}

// Lose moves an active or timed out parcel to Lost.
func (r ParcelTrackingRecord) Lose(at time.Time) (ParcelTrackingRecord, error) {
	if !r.IsActive() && r.Status != StatusTimedOut {
		return r, r.invalid(StatusLost)
	}
	r.Status = StatusLost
	r.LastSeenAt = &at
	return r, nil
}

// advance checks a move along Detected, Assigned, Routing, Sorted.
func (r ParcelTrackingRecord) advance(to ParcelStatus) error {
	from, ok := forward[r.Status]
	if !ok || r.IsTerminal() {
		return r.invalid(to)
	}
	if forward[to] < from {
		return r.invalid(to)
	}
	return nil
}

func (r ParcelTrackingRecord) invalid(to ParcelStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
}

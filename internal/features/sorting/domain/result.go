package domain

import "time"

// ParcelState is the orchestrator's position in the per-parcel pipeline.
type ParcelState string

const (
	StateDetected            ParcelState = "Detected"
	StateCongestionEvaluated ParcelState = "CongestionEvaluated"
	StateChuteSelected       ParcelState = "ChuteSelected"
	StatePathPlanned         ParcelState = "PathPlanned"
	StateExecuted            ParcelState = "Executed"
	StateCompleted           ParcelState = "Completed"
	StateExceptionRouted     ParcelState = "ExceptionRouted"
)

// SortingResult is what a sort attempt produced.
type SortingResult struct {
	ParcelID          uint64    `json:"parcel_id"`
	IsSuccess         bool      `json:"is_success"`
	TargetChuteID     int64     `json:"target_chute_id"`
	ActualChuteID     int64     `json:"actual_chute_id"`
	IsExceptionRouted bool      `json:"is_exception_routed"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	PathSegmentCount  int       `json:"path_segment_count"`
	CompletedAt       time.Time `json:"completed_at"`
}

// FinalStatus is the terminal outcome reported upstream.
type FinalStatus string

const (
	FinalSuccess        FinalStatus = "Success"
	FinalTimeout        FinalStatus = "Timeout"
	FinalLost           FinalStatus = "Lost"
	FinalExecutionError FinalStatus = "ExecutionError"
)

// SortingCompletedNotification is sent upstream once per terminal outcome.
// Receivers must tolerate duplicates.
type SortingCompletedNotification struct {
	ParcelID      uint64      `json:"parcel_id"`
	ActualChuteID int64       `json:"actual_chute_id"`
	CompletedAt   time.Time   `json:"completed_at"`
	IsSuccess     bool        `json:"is_success"`
	FinalStatus   FinalStatus `json:"final_status"`
}

package domain

import (
	"time"

	topology "parcel-sorter/internal/features/topology/domain"
)

// Path switch reasons.
const (
	SwitchReasonSegmentFailed = "segment_failed"
	SwitchReasonReroute       = "reroute"
	SwitchReasonTimeout       = "timeout"
)

// Reroute is a path handed to a running execution.
type Reroute struct {
	Path *topology.SwitchingPath
	// Timeout marks a move to the exception chute after the parcel timed out.
	// The parcel keeps its original target.
	Timeout bool
}

// TimingAnomaly records a segment that took longer than its TTL. The segment
// still completed.
type TimingAnomaly struct {
	Segment topology.SwitchingPathSegment
	Elapsed time.Duration
}

// PathExecutionResult is the outcome of running one path against the diverters.
type PathExecutionResult struct {
	IsSuccess bool
	// TargetChuteID is the intended chute: the last path that was neither a
	// fallback nor a timeout reroute.
	TargetChuteID int64
	// ActualChuteID is the chute the parcel was steered to. Zero unless IsSuccess.
	ActualChuteID int64
	// SegmentsCompleted counts every segment commanded, across reroutes and fallback.
	SegmentsCompleted int
	FailedSegment     *topology.SwitchingPathSegment
	FailureReason     string
	// Cancelled is set when the context ended before the path finished.
	Cancelled bool
	// Superseded carries the reroute that replaced this path mid-execution.
	Superseded *Reroute
	// TimedOut is set once a timeout reroute took over.
	TimedOut bool
	// UsedBackup is set when the parcel finished on the fallback path.
	UsedBackup bool
	// Unhandled is set when even the fallback path could not be generated.
	Unhandled bool
	Anomalies []TimingAnomaly
}

// SegmentFailedEvent is published when a diverter rejects a command.
type SegmentFailedEvent struct {
	ParcelID              uint64                        `json:"parcel_id"`
	FailedSegment         topology.SwitchingPathSegment `json:"failed_segment"`
	OriginalTargetChuteID int64                         `json:"original_target_chute_id"`
	Reason                string                        `json:"reason"`
	OccurredAt            time.Time                     `json:"occurred_at"`
}

// PathSwitchedEvent is published when a parcel moves to a new path.
type PathSwitchedEvent struct {
	ParcelID              uint64    `json:"parcel_id"`
	OriginalTargetChuteID int64     `json:"original_target_chute_id"`
	BackupTargetChuteID   int64     `json:"backup_target_chute_id"`
	BackupSegmentCount    int       `json:"backup_segment_count"`
	Reason                string    `json:"reason"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// TimingAnomalyEvent is published for every segment that overran its TTL.
type TimingAnomalyEvent struct {
	ParcelID   uint64        `json:"parcel_id"`
	DiverterID string        `json:"diverter_id"`
	Sequence   int           `json:"sequence_number"`
	Budget     time.Duration `json:"budget"`
	Elapsed    time.Duration `json:"elapsed"`
	OccurredAt time.Time     `json:"occurred_at"`
}

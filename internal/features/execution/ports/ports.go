package ports

import (
	"context"

	"parcel-sorter/internal/features/execution/domain"
	topology "parcel-sorter/internal/features/topology/domain"
)

// DiverterDriver commands a single diverter wheel.
type DiverterDriver interface {
	SetAngle(ctx context.Context, diverterID string, angle domain.Angle) error
	// Reset returns the wheel to straight.
	Reset(ctx context.Context, diverterID string) error
}

// Reroutes hands replacement paths to a running execution.
type Reroutes interface {
	// Next returns the pending reroute, or nil. final is set before the last
	// segment of the path; a final call that returns nil closes the parcel to
	// further reroutes.
	Next(final bool) *domain.Reroute
	// Close rejects whatever is still pending. Nothing is accepted afterwards.
	Close()
}

// Executor runs one path segment by segment. A reroute taken between segments
// stops execution and is returned in the result. reroutes may be nil.
type Executor interface {
	Execute(ctx context.Context, path *topology.SwitchingPath, reroutes Reroutes) domain.PathExecutionResult
}

// FailureHandler produces the path taken after a segment fails.
type FailureHandler interface {
	// BackupPath returns nil when the fallback chute is unreachable.
	BackupPath(failed *topology.SwitchingPath) *topology.SwitchingPath
}

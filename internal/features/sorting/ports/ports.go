package ports

import (
	"context"
	"time"

	congestion "parcel-sorter/internal/features/congestion/domain"
	execution "parcel-sorter/internal/features/execution/domain"
	executionports "parcel-sorter/internal/features/execution/ports"
	reroute "parcel-sorter/internal/features/reroute/domain"
	"parcel-sorter/internal/features/sorting/domain"
	topology "parcel-sorter/internal/features/topology/domain"
)

// Notifier reports terminal outcomes upstream. Delivery is at-least-once.
type Notifier interface {
	Notify(ctx context.Context, n domain.SortingCompletedNotification) error
}

// PathExecutor runs a path with fallback handling. reroutes may be nil and is
// closed before Execute returns.
type PathExecutor interface {
	Execute(ctx context.Context, parcelID uint64, path *topology.SwitchingPath, reroutes executionports.Reroutes) execution.PathExecutionResult
}

// PlanStore owns the route plans chute changes are applied to.
type PlanStore interface {
	CreatePlan(ctx context.Context, parcelID uint64, createdAt time.Time) error
	AssignTarget(ctx context.Context, parcelID uint64, chuteID int64) (int64, error)
	Transition(ctx context.Context, parcelID uint64, status reroute.PlanStatus) error
	Forget(ctx context.Context, parcelID uint64) error
}

// LoadWindow counts parcels in flight and keeps recent outcomes.
type LoadWindow interface {
	ParcelStarted()
	ParcelFinished(success bool, latency time.Duration)
	Snapshot() congestion.MetricsSnapshot
}

// CongestionAssessor grades a metrics snapshot.
type CongestionAssessor interface {
	Assess(snap congestion.MetricsSnapshot) congestion.Assessment
}

// OverloadPolicy decides whether a parcel may be routed normally.
type OverloadPolicy interface {
	Evaluate(in congestion.OverloadContext) congestion.OverloadDecision
}

// TopologyRebuilder reloads the topology behind the path generator.
type TopologyRebuilder interface {
	Rebuild(ctx context.Context) error
	Topology() *topology.Topology
}

// NodeRegistry is told which diverters exist after a rebuild.
type NodeRegistry interface {
	SetKnownNodes(nodeIDs []string)
}

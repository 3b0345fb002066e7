package ports

import (
	"context"

	"parcel-sorter/internal/features/topology/domain"
)

// TopologySource loads the sorter layout.
type TopologySource interface {
	Load(ctx context.Context) (*domain.Topology, error)
}

// HealthView exposes the diverters that must not be traversed.
// The version changes whenever the set changes.
type HealthView interface {
	UnhealthyNodes() (nodes map[string]struct{}, version uint64)
}

// PathGenerator compiles a chute into a switching path.
type PathGenerator interface {
	// GeneratePath returns nil when the chute cannot be reached.
	GeneratePath(chuteID int64) *domain.SwitchingPath
}

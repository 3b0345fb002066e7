package ports

import "parcel-sorter/internal/features/health/domain"

// HealthRegistry is the primary port of the node health feature.
type HealthRegistry interface {
	Update(status domain.NodeHealthStatus) error
	Get(nodeID string) (domain.NodeHealthStatus, bool)
	Snapshot() []domain.NodeHealthStatus
	Degradation() domain.DegradationMode
}

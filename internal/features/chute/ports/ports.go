package ports

import (
	"context"

	"parcel-sorter/internal/features/chute/domain"
)

// UpstreamRouter asks the routing system for a parcel's chute.
// Failures are *domain.RoutingError.
type UpstreamRouter interface {
	AssignChute(ctx context.Context, parcelID uint64) (domain.ChuteAssignment, error)
	// NotifyParcelDetected is fire-and-forget; false means the notice was not delivered.
	NotifyParcelDetected(ctx context.Context, parcelID uint64) bool
}

// ChuteSelector resolves a sorting context to a chute.
type ChuteSelector interface {
	SelectChute(ctx context.Context, sc domain.SortingContext) domain.ChuteSelectionResult
}

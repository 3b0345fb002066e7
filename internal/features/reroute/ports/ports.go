package ports

import (
	"context"

	"parcel-sorter/internal/features/reroute/domain"
)

// PlanRepository persists route plans.
type PlanRepository interface {
	Save(ctx context.Context, plan domain.RoutePlan) error
	// Get returns domain.ErrPlanNotFound for unknown parcels.
	Get(ctx context.Context, parcelID uint64) (*domain.RoutePlan, error)
	Delete(ctx context.Context, parcelID uint64) error
}

// Replanner compiles and applies a new path for a parcel.
type Replanner interface {
	Replan(ctx context.Context, parcelID uint64, chuteID int64) error
}

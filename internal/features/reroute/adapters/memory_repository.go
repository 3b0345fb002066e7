package adapters

import (
	"context"
	"sync"

	"parcel-sorter/internal/features/reroute/domain"
)

// MemoryRepository keeps plans in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[uint64]domain.RoutePlan
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[uint64]domain.RoutePlan)}
}

func (r *MemoryRepository) Save(ctx context.Context, plan domain.RoutePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.ParcelID] = plan
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, parcelID uint64) (*domain.RoutePlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[parcelID]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return &plan, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, parcelID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plans, parcelID)
	return nil
}

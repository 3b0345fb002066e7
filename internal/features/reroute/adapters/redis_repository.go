package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"parcel-sorter/internal/core/cache"
	"parcel-sorter/internal/features/reroute/domain"
)

const planKeyPrefix = "routeplan:"

// RedisRepository stores plans as JSON through the cache port so they
// survive a restart of the sorter.
type RedisRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRedisRepository creates a new RedisRepository. Plans expire after ttl.
func NewRedisRepository(c cache.Cache, ttl time.Duration) *RedisRepository {
	return &RedisRepository{cache: c, ttl: ttl}
}

func planKey(parcelID uint64) string {
	return planKeyPrefix + strconv.FormatUint(parcelID, 10)
}

func (r *RedisRepository) Save(ctx context.Context, plan domain.RoutePlan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal route plan: %w", err)
	}
	if err := r.cache.Set(ctx, planKey(plan.ParcelID), data, r.ttl); err != nil {
		return fmt.Errorf("failed to save route plan: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, parcelID uint64) (*domain.RoutePlan, error) {
	data, err := r.cache.Get(ctx, planKey(parcelID))
	if err != nil {
		if errors.Is(err, cache.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %d", domain.ErrPlanNotFound, parcelID)
		}
		return nil, fmt.Errorf("failed to get route plan: %w", err)
	}

	var plan domain.RoutePlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal route plan: %w", err)
	}
	return &plan, nil
}

func (r *RedisRepository) Delete(ctx context.Context, parcelID uint64) error {
	if err := r.cache.Delete(ctx, planKey(parcelID)); err != nil {
		return fmt.Errorf("failed to delete route plan: %w", err)
	}
	return nil
}

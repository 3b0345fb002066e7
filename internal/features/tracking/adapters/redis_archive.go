package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"parcel-sorter/internal/core/cache"
	"parcel-sorter/internal/features/tracking/domain"
)

const archiveKeyPrefix = "tracking:"

// RedisArchive implements ports.TrackingArchive on top of the cache port.
type RedisArchive struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRedisArchive creates a new RedisArchive. Records expire after ttl.
func NewRedisArchive(c cache.Cache, ttl time.Duration) *RedisArchive {
	return &RedisArchive{
		cache: c,
		ttl:   ttl,
	}
}

func archiveKey(parcelID uint64) string {
	return archiveKeyPrefix + strconv.FormatUint(parcelID, 10)
}

// Store saves a removed record.
func (a *RedisArchive) Store(ctx context.Context, record domain.ParcelTrackingRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking record: %w", err)
	}

	if err := a.cache.Set(ctx, archiveKey(record.ParcelID), data, a.ttl); err != nil {
		return fmt.Errorf("failed to archive tracking record: %w", err)
	}
	return nil
}

// Get loads an archived record.
func (a *RedisArchive) Get(ctx context.Context, parcelID uint64) (*domain.ParcelTrackingRecord, error) {
	data, err := a.cache.Get(ctx, archiveKey(parcelID))
	if err != nil {
		if errors.Is(err, cache.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %d", domain.ErrParcelNotTracked, parcelID)
		}
		return nil, fmt.Errorf("failed to get archived record: %w", err)
	}

	var record domain.ParcelTrackingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archived record: %w", err)
	}
	return &record, nil
}

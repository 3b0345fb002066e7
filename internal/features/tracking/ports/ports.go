package ports

import (
	"context"
	"time"

	"parcel-sorter/internal/features/tracking/domain"
)

// TrackingService is the only writer of the parcel ledger.
type TrackingService interface {
	Create(parcelID uint64, detectedAt time.Time) (*domain.ParcelTrackingRecord, error)
	UpdateAssigned(parcelID uint64, chuteID int64) (*domain.ParcelTrackingRecord, error)
	UpdateRouting(parcelID uint64) (*domain.ParcelTrackingRecord, error)
	UpdateSorted(parcelID uint64, actualChuteID int64) (*domain.ParcelTrackingRecord, error)
	UpdateTimedOut(parcelID uint64) (*domain.ParcelTrackingRecord, error)
	UpdateLost(parcelID uint64) (*domain.ParcelTrackingRecord, error)
	GetByID(parcelID uint64) (*domain.ParcelTrackingRecord, error)
	GetActive() []domain.ParcelTrackingRecord
	GetActiveDetectedBefore(cutoff time.Time) []domain.ParcelTrackingRecord
	GetTimedOutBefore(cutoff time.Time) []domain.ParcelTrackingRecord
	CleanupExpired(ctx context.Context, olderThan time.Time) []domain.ParcelTrackingRecord
	Lookup(ctx context.Context, parcelID uint64) (*domain.ParcelTrackingRecord, error)
}

// TrackingArchive keeps records removed from the ledger.
type TrackingArchive interface {
	Store(ctx context.Context, record domain.ParcelTrackingRecord) error
	// Get returns domain.ErrParcelNotTracked when nothing is archived.
	Get(ctx context.Context, parcelID uint64) (*domain.ParcelTrackingRecord, error)
}

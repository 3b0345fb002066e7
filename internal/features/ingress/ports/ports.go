package ports

import (
	"context"
	"time"

	sorting "parcel-sorter/internal/features/sorting/domain"
	tracking "parcel-sorter/internal/features/tracking/domain"
)

// ParcelProcessor sorts a detected parcel.
type ParcelProcessor interface {
	ProcessParcel(ctx context.Context, parcelID uint64, sensorID string, detectedAt *time.Time) sorting.SortingResult
}

// ParcelSweeper handles parcels the monitors found overdue or expired.
type ParcelSweeper interface {
	ProcessTimedOutParcel(ctx context.Context, parcelID uint64) sorting.SortingResult
	MarkLost(ctx context.Context, parcelID uint64) error
	CleanupExpired(ctx context.Context, olderThan time.Time) int
}

// LedgerQueries are the tracking reads the monitors scan.
type LedgerQueries interface {
	GetActiveDetectedBefore(cutoff time.Time) []tracking.ParcelTrackingRecord
	GetTimedOutBefore(cutoff time.Time) []tracking.ParcelTrackingRecord
}

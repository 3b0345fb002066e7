package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/tracking/domain"
	"parcel-sorter/internal/features/tracking/ports"

	"go.uber.org/zap"
)

type transition func(domain.ParcelTrackingRecord, time.Time) (domain.ParcelTrackingRecord, error)

// TrackingService is the lifecycle ledger. Records are replaced atomically per
// parcel; there is no lock shared across parcels.
type TrackingService struct {
	records sync.Map // uint64 -> *domain.ParcelTrackingRecord
	archive ports.TrackingArchive
	now     func() time.Time
}

// NewTrackingService creates a ledger. archive may be nil.
func NewTrackingService(archive ports.TrackingArchive) *TrackingService {
	return &TrackingService{
		archive: archive,
		now:     time.Now,
	}
}

// Create starts tracking a parcel.
func (s *TrackingService) Create(parcelID uint64, detectedAt time.Time) (*domain.ParcelTrackingRecord, error) {
	if detectedAt.IsZero() {
		detectedAt = s.now()
	}
	rec := domain.NewRecord(parcelID, detectedAt)
	if _, loaded := s.records.LoadOrStore(parcelID, &rec); loaded {
		return nil, fmt.Errorf("%w: %d", domain.ErrParcelAlreadyTracked, parcelID)
	}
	out := rec
	return &out, nil
}

// UpdateAssigned records the target chute.
func (s *TrackingService) UpdateAssigned(parcelID uint64, chuteID int64) (*domain.ParcelTrackingRecord, error) {
	return s.apply(parcelID, func(r domain.ParcelTrackingRecord, at time.Time) (domain.ParcelTrackingRecord, error) {
		return r.Assign(chuteID, at)
	})
}

// UpdateRouting marks the parcel on its path.
func (s *TrackingService) UpdateRouting(parcelID uint64) (*domain.ParcelTrackingRecord, error) {
	return s.apply(parcelID, domain.ParcelTrackingRecord.Route)
}

// UpdateSorted records the chute the parcel reached.
func (s *TrackingService) UpdateSorted(parcelID uint64, actualChuteID int64) (*domain.ParcelTrackingRecord, error) {
	return s.apply(parcelID, func(r domain.ParcelTrackingRecord, at time.Time) (domain.ParcelTrackingRecord, error) {
		return r.Sort(actualChuteID, at)
	})
}

// UpdateTimedOut marks an active parcel as late.
func (s *TrackingService) UpdateTimedOut(parcelID uint64) (*domain.ParcelTrackingRecord, error) {
	return s.apply(parcelID, domain.ParcelTrackingRecord.TimeOut)
}

// UpdateLost gives up on a parcel.
func (s *TrackingService) UpdateLost(parcelID uint64) (*domain.ParcelTrackingRecord, error) {
	return s.apply(parcelID, domain.ParcelTrackingRecord.Lose)
}

// apply replaces the record with next(record) using compare-and-swap, retrying
// when another goroutine replaced it first. Absent parcels are never created.
func (s *TrackingService) apply(parcelID uint64, next transition) (*domain.ParcelTrackingRecord, error) {
	for {
		v, ok := s.records.Load(parcelID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrParcelNotTracked, parcelID)
		}
		current := v.(*domain.ParcelTrackingRecord)

		updated, err := next(*current, s.now())
		if err != nil {
			return nil, fmt.Errorf("parcel %d: %w", parcelID, err)
		}

		if s.records.CompareAndSwap(parcelID, current, &updated) {
			out := updated
			return &out, nil
		}
	}
}

// GetByID returns a copy of the live record.
func (s *TrackingService) GetByID(parcelID uint64) (*domain.ParcelTrackingRecord, error) {
	v, ok := s.records.Load(parcelID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrParcelNotTracked, parcelID)
	}
	out := *v.(*domain.ParcelTrackingRecord)
	return &out, nil
}

// Lookup checks the live ledger, then the archive.
func (s *TrackingService) Lookup(ctx context.Context, parcelID uint64) (*domain.ParcelTrackingRecord, error) {
	rec, err := s.GetByID(parcelID)
	if err == nil || s.archive == nil {
		return rec, err
	}
	return s.archive.Get(ctx, parcelID)
}

// GetActive returns the parcels in Detected, Assigned or Routing, oldest first.
func (s *TrackingService) GetActive() []domain.ParcelTrackingRecord {
	return s.collect(func(r domain.ParcelTrackingRecord) bool { return r.IsActive() })
}

// GetActiveDetectedBefore returns active parcels detected before cutoff.
func (s *TrackingService) GetActiveDetectedBefore(cutoff time.Time) []domain.ParcelTrackingRecord {
	return s.collect(func(r domain.ParcelTrackingRecord) bool {
		return r.IsActive() && r.DetectedAt.Before(cutoff)
	})
}

// GetTimedOutBefore returns timed out parcels detected before cutoff.
func (s *TrackingService) GetTimedOutBefore(cutoff time.Time) []domain.ParcelTrackingRecord {
	return s.collect(func(r domain.ParcelTrackingRecord) bool {
		return r.Status == domain.StatusTimedOut && r.DetectedAt.Before(cutoff)
	})
}

// CleanupExpired removes Sorted and Lost records detected before olderThan and
// returns them. Removed records are archived when an archive is configured.
func (s *TrackingService) CleanupExpired(ctx context.Context, olderThan time.Time) []domain.ParcelTrackingRecord {
	var removed []domain.ParcelTrackingRecord

	s.records.Range(func(key, value interface{}) bool {
		rec := value.(*domain.ParcelTrackingRecord)
		if !rec.IsTerminal() || !rec.DetectedAt.Before(olderThan) {
			return true
		}
		// terminal records are never replaced, so this only races with another sweep
		if s.records.CompareAndDelete(key, value) {
			removed = append(removed, *rec)
		}
		return true
	})

	sortByDetection(removed)

	if s.archive != nil {
		log := logger.Named("tracking")
		for _, rec := range removed {
			if err := s.archive.Store(ctx, rec); err != nil {
				log.Warn("Failed to archive tracking record",
					zap.Uint64("parcel_id", rec.ParcelID),
					zap.Error(err),
				)
			}
		}
	}

	return removed
}

func (s *TrackingService) collect(keep func(domain.ParcelTrackingRecord) bool) []domain.ParcelTrackingRecord {
	var out []domain.ParcelTrackingRecord
	s.records.Range(func(_, value interface{}) bool {
		rec := *value.(*domain.ParcelTrackingRecord)
		if keep(rec) {
			out = append(out, rec)
		}
		return true
	})
	sortByDetection(out)
	return out
}

func sortByDetection(records []domain.ParcelTrackingRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].DetectedAt.Equal(records[j].DetectedAt) {
			return records[i].ParcelID < records[j].ParcelID
		}
		return records[i].DetectedAt.Before(records[j].DetectedAt)
	})
}

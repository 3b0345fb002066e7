package domain

import "time"

// SwitchingPathSegment is one diverter command of a path.
type SwitchingPathSegment struct {
	// SequenceNumber starts at 1 and has no gaps.
	SequenceNumber  int           `json:"sequence_number"`
	DiverterID      string        `json:"diverter_id"`
	TargetDirection Direction     `json:"target_direction"`
	TTL             time.Duration `json:"ttl"`
}

// SwitchingPath is a compiled route to a chute. It is never modified after
// generation; a reroute produces a new path.
type SwitchingPath struct {
	TargetChuteID int64 `json:"target_chute_id"`
	// FallbackChuteID is the exception chute used when any segment fails.
	FallbackChuteID int64                  `json:"fallback_chute_id"`
	Segments        []SwitchingPathSegment `json:"segments"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// TotalTTL is the sum of the segment budgets.
func (p *SwitchingPath) TotalTTL() time.Duration {
	var total time.Duration
	for _, s := range p.Segments {
		total += s.TTL
	}
	return total
}

package service

import (
	"fmt"

	"parcel-sorter/internal/features/congestion/domain"
)

// Policy turns congestion and per-parcel timing into an overload decision.
type Policy struct {
	cfg domain.PolicyConfig
}

// NewPolicy creates a new Policy.
func NewPolicy(cfg domain.PolicyConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Evaluate walks the ladder from line-wide to parcel-specific checks. The first
// check that forces an exception wins. A check that only marks the parcel lets
// the later checks run; the first marking reason is kept.
func (p *Policy) Evaluate(in domain.OverloadContext) domain.OverloadDecision {
	if !p.cfg.Enabled {
		return domain.ContinueNormal()
	}

	if in.Level == domain.LevelSevere && p.cfg.ForceExceptionOnSevere {
		return domain.OverloadDecision{
			ShouldForceException: true,
			Reason:               "severe congestion",
			ReasonCode:           domain.ReasonOther,
		}
	}

	decision := domain.ContinueNormal()

	checks := []struct {
		hit    bool
		force  bool
		code   domain.OverloadReasonCode
		reason func() string
	}{
		{
			hit:   p.cfg.MaxInFlightParcels > 0 && in.InFlightParcels > p.cfg.MaxInFlightParcels,
			force: p.cfg.ForceExceptionOnOverCapacity,
			code:  domain.ReasonCapacityExceeded,
			reason: func() string {
				return fmt.Sprintf("in-flight parcels %d exceed %d", in.InFlightParcels, p.cfg.MaxInFlightParcels)
			},
		},
		{
			hit:   in.RemainingTTL < p.cfg.MinRequiredTTL,
			force: p.cfg.ForceExceptionOnTimeout,
			code:  domain.ReasonTimeout,
			reason: func() string {
				return fmt.Sprintf("remaining ttl %s below %s", in.RemainingTTL, p.cfg.MinRequiredTTL)
			},
		},
		{
			hit:   in.ArrivalWindow < p.cfg.MinArrivalWindow,
			force: p.cfg.ForceExceptionOnWindowMiss,
			code:  domain.ReasonWindowMiss,
			reason: func() string {
				return fmt.Sprintf("arrival window %s below %s", in.ArrivalWindow, p.cfg.MinArrivalWindow)
			},
		},
	}

	for _, c := range checks {
		if !c.hit {
			continue
		}
		if c.force {
			return domain.OverloadDecision{
				ShouldForceException: true,
				ShouldMarkAsOverflow: decision.ShouldMarkAsOverflow,
				Reason:               c.reason(),
				ReasonCode:           c.code,
			}
		}
		if !decision.ShouldMarkAsOverflow {
			decision = domain.OverloadDecision{
				ShouldMarkAsOverflow:      true,
				ShouldPreferRecirculation: p.cfg.PreferRecirculation,
				Reason:                    c.reason(),
				ReasonCode:                c.code,
			}
		}
	}

	return decision
}

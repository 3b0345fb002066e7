package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/health/domain"

	"go.uber.org/zap"
)

// Registry keeps the latest health report per diverter. Reads take a shared lock
// and hand out values that are never modified afterwards.
type Registry struct {
	mu        sync.RWMutex
	known     map[string]struct{}
	statuses  map[string]domain.NodeHealthStatus
	unhealthy map[string]struct{}
	version   uint64
	lineRatio float64
	now       func() time.Time
}

// NewRegistry creates a registry for the given diverters. All of them start healthy.
func NewRegistry(nodeIDs []string, lineRatio float64) *Registry {
	r := &Registry{
		statuses:  make(map[string]domain.NodeHealthStatus),
		unhealthy: map[string]struct{}{},
		lineRatio: lineRatio,
		now:       time.Now,
	}
	r.SetKnownNodes(nodeIDs)
	return r
}

// SetKnownNodes replaces the diverter set, dropping reports for diverters that no longer exist.
func (r *Registry) SetKnownNodes(nodeIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known = make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		r.known[id] = struct{}{}
	}
	for id := range r.statuses {
		if _, ok := r.known[id]; !ok {
			delete(r.statuses, id)
		}
	}
	r.publishLocked()
}

// Update records a health report.
func (r *Registry) Update(status domain.NodeHealthStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.known[status.NodeID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownNode, status.NodeID)
	}
	if status.CheckedAt.IsZero() {
		status.CheckedAt = r.now()
	}

	prev, had := r.statuses[status.NodeID]
	r.statuses[status.NodeID] = status

	wasHealthy := !had || prev.IsHealthy
	if wasHealthy != status.IsHealthy {
		r.publishLocked()
		logger.Named("health").Warn("Diverter health changed",
			zap.String("node_id", status.NodeID),
			zap.Bool("is_healthy", status.IsHealthy),
			zap.String("error_code", status.ErrorCode),
			zap.String("degradation_mode", string(r.degradationLocked())),
		)
	}
	return nil
}

// publishLocked rebuilds the unhealthy set and bumps the version.
func (r *Registry) publishLocked() {
	unhealthy := make(map[string]struct{})
	for id, s := range r.statuses {
		if !s.IsHealthy {
			unhealthy[id] = struct{}{}
		}
	}
	r.unhealthy = unhealthy
	r.version++
}

// Get returns the status of a diverter. Diverters never reported are healthy.
func (r *Registry) Get(nodeID string) (domain.NodeHealthStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.known[nodeID]; !ok {
		return domain.NodeHealthStatus{}, false
	}
	if s, ok := r.statuses[nodeID]; ok {
		return s, true
	}
	return domain.NodeHealthStatus{NodeID: nodeID, IsHealthy: true}, true
}

// Snapshot returns the status of every diverter ordered by id.
func (r *Registry) Snapshot() []domain.NodeHealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.NodeHealthStatus, 0, len(r.known))
	for id := range r.known {
		if s, ok := r.statuses[id]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, domain.NodeHealthStatus{NodeID: id, IsHealthy: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// UnhealthyNodes returns the current unhealthy set and its version.
// The map must not be modified by callers.
func (r *Registry) UnhealthyNodes() (map[string]struct{}, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unhealthy, r.version
}

// Degradation returns the line-wide mode.
func (r *Registry) Degradation() domain.DegradationMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degradationLocked()
}

func (r *Registry) degradationLocked() domain.DegradationMode {
	return domain.ComputeDegradation(len(r.unhealthy), len(r.known), r.lineRatio)
}

package service

import (
	topology "parcel-sorter/internal/features/topology/domain"
	topologyports "parcel-sorter/internal/features/topology/ports"
)

// FallbackHandler routes a failed parcel to the failed path's fallback chute.
// The original target is never re-derived.
type FallbackHandler struct {
	generator topologyports.PathGenerator
}

// NewFallbackHandler creates a new FallbackHandler.
func NewFallbackHandler(generator topologyports.PathGenerator) *FallbackHandler {
	return &FallbackHandler{generator: generator}
}

// BackupPath generates a fresh path to failed.FallbackChuteID.
func (h *FallbackHandler) BackupPath(failed *topology.SwitchingPath) *topology.SwitchingPath {
	if failed == nil || failed.FallbackChuteID <= 0 {
		return nil
	}
	return h.generator.GeneratePath(failed.FallbackChuteID)
}

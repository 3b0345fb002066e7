package domain

import (
	"errors"
	"time"
)

// DegradationMode summarises the health of the whole line.
type DegradationMode string

const (
	DegradationNone         DegradationMode = "None"
	DegradationNodeDegraded DegradationMode = "NodeDegraded"
	DegradationLineDegraded DegradationMode = "LineDegraded"
)

// ErrUnknownNode is returned when a health report names a diverter that is not in the topology.
var ErrUnknownNode = errors.New("unknown node")

// NodeHealthStatus is the last reported health of one diverter.
type NodeHealthStatus struct {
	NodeID       string    `json:"node_id"`
	IsHealthy    bool      `json:"is_healthy"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// ComputeDegradation maps the unhealthy share of the line to a mode. Any unhealthy
// node degrades the line; at lineRatio or above the whole line is degraded.
func ComputeDegradation(unhealthy, total int, lineRatio float64) DegradationMode {
	if unhealthy <= 0 || total <= 0 {
		return DegradationNone
	}
	if float64(unhealthy)/float64(total) < lineRatio {
		return DegradationNodeDegraded
	}
	return DegradationLineDegraded
}

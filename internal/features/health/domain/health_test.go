package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDegradation(t *testing.T) {
	tests := []struct {
		name      string
		unhealthy int
		total     int
		expected  DegradationMode
	}{
		{"AllHealthy", 0, 10, DegradationNone},
		{"EmptyLine", 0, 0, DegradationNone},
		{"OneDown", 1, 10, DegradationNodeDegraded},
		{"JustBelowRatio", 4, 10, DegradationNodeDegraded},
		{"AtRatio", 5, 10, DegradationLineDegraded},
		{"AllDown", 10, 10, DegradationLineDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeDegradation(tt.unhealthy, tt.total, 0.5))
		})
	}
}

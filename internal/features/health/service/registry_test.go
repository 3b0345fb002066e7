package service

import (
	"sync"
	"testing"

	"parcel-sorter/internal/features/health/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DefaultsHealthy(t *testing.T) {
	r := NewRegistry([]string{"D1", "D2"}, 0.5)

	s, ok := r.Get("D1")
	require.True(t, ok)
	assert.True(t, s.IsHealthy)

	_, ok = r.Get("D9")
	assert.False(t, ok)

	nodes, _ := r.UnhealthyNodes()
	assert.Empty(t, nodes)
	assert.Equal(t, domain.DegradationNone, r.Degradation())
}

func TestRegistry_Update(t *testing.T) {
	r := NewRegistry([]string{"D1", "D2", "D3", "D4"}, 0.5)
	_, v0 := r.UnhealthyNodes()

	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D2", IsHealthy: false, ErrorCode: "E_STUCK"}))

	nodes, v1 := r.UnhealthyNodes()
	assert.Contains(t, nodes, "D2")
	assert.Greater(t, v1, v0)
	assert.Equal(t, domain.DegradationNodeDegraded, r.Degradation())

	s, _ := r.Get("D2")
	assert.Equal(t, "E_STUCK", s.ErrorCode)
	assert.False(t, s.CheckedAt.IsZero())

	// same health again does not bump the version
	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D2", IsHealthy: false, ErrorCode: "E_STUCK"}))
	_, v2 := r.UnhealthyNodes()
	assert.Equal(t, v1, v2)

	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D3", IsHealthy: false}))
	assert.Equal(t, domain.DegradationLineDegraded, r.Degradation())

	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D2", IsHealthy: true}))
	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D3", IsHealthy: true}))
	assert.Equal(t, domain.DegradationNone, r.Degradation())
}

func TestRegistry_UnknownNode(t *testing.T) {
	r := NewRegistry([]string{"D1"}, 0.5)
	err := r.Update(domain.NodeHealthStatus{NodeID: "X"})
	assert.ErrorIs(t, err, domain.ErrUnknownNode)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry([]string{"D2", "D1"}, 0.5)
	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D2", IsHealthy: false}))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "D1", snap[0].NodeID)
	assert.True(t, snap[0].IsHealthy)
	assert.Equal(t, "D2", snap[1].NodeID)
	assert.False(t, snap[1].IsHealthy)
}

func TestRegistry_SetKnownNodesDropsStale(t *testing.T) {
	r := NewRegistry([]string{"D1", "D2"}, 0.5)
	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D2", IsHealthy: false}))

	r.SetKnownNodes([]string{"D1"})

	nodes, _ := r.UnhealthyNodes()
	assert.Empty(t, nodes)
	assert.Len(t, r.Snapshot(), 1)
}

func TestRegistry_PublishedSetIsStable(t *testing.T) {
	r := NewRegistry([]string{"D1", "D2"}, 0.5)
	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D1", IsHealthy: false}))

	held, _ := r.UnhealthyNodes()
	require.NoError(t, r.Update(domain.NodeHealthStatus{NodeID: "D2", IsHealthy: false}))

	assert.Len(t, held, 1, "earlier readers keep their snapshot")
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry([]string{"D1", "D2"}, 0.5)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Update(domain.NodeHealthStatus{NodeID: "D1", IsHealthy: (i+j)%2 == 0})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.UnhealthyNodes()
				_ = r.Degradation()
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parcel-sorter/internal/features/topology/domain"
	"parcel-sorter/internal/features/topology/ports"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exceptionChute = 999

// stubSource returns the topologies in order, repeating the last one.
type stubSource struct {
	mu    sync.Mutex
	topos []*domain.Topology
	err   error
	loads int
}

func (s *stubSource) Load(ctx context.Context) (*domain.Topology, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	i := s.loads
	if i >= len(s.topos) {
		i = len(s.topos) - 1
	}
	s.loads++
	return s.topos[i], nil
}

type stubHealth struct {
	nodes   map[string]struct{}
	version uint64
}

func (h *stubHealth) UnhealthyNodes() (map[string]struct{}, uint64) {
	return h.nodes, h.version
}

// D1: Right -> 1, Left -> 2, Straight -> D2; D2: Straight -> 999, Left -> 3
func lineTopology(t *testing.T) *domain.Topology {
	t.Helper()
	topo, err := domain.NewTopology("D1", time.Second,
		[]domain.Node{
			{ID: "D1", IOPoint: "Q0.1", Exits: map[domain.Direction]domain.Exit{
				domain.DirectionRight:    {ToChute: 1},
				domain.DirectionLeft:     {ToChute: 2},
				domain.DirectionStraight: {ToNode: "D2"},
			}},
			{ID: "D2", IOPoint: "Q0.2", Exits: map[domain.Direction]domain.Exit{
				domain.DirectionStraight: {ToChute: exceptionChute},
				domain.DirectionLeft:     {ToChute: 3},
			}},
		},
		[]domain.Chute{{ID: 1}, {ID: 2}, {ID: 3}, {ID: exceptionChute}},
	)
	require.NoError(t, err)
	return topo
}

func newGenerator(t *testing.T, health *stubHealth, topos ...*domain.Topology) (*Generator, *stubSource) {
	t.Helper()
	src := &stubSource{topos: topos}
	var hv ports.HealthView
	if health != nil {
		hv = health
	}
	g, err := NewGenerator(context.Background(), src, hv, exceptionChute, 16)
	require.NoError(t, err)
	return g, src
}

func TestGeneratePath_SingleSegment(t *testing.T) {
	g, _ := newGenerator(t, nil, lineTopology(t))

	path := g.GeneratePath(1)
	require.NotNil(t, path)

	assert.Equal(t, int64(1), path.TargetChuteID)
	assert.Equal(t, int64(exceptionChute), path.FallbackChuteID)
	assert.False(t, path.GeneratedAt.IsZero())
	require.Len(t, path.Segments, 1)
	assert.Equal(t, domain.SwitchingPathSegment{
		SequenceNumber:  1,
		DiverterID:      "D1",
		TargetDirection: domain.DirectionRight,
		TTL:             time.Second,
	}, path.Segments[0])
}

func TestGeneratePath_Unknown(t *testing.T) {
	g, _ := newGenerator(t, nil, lineTopology(t))

	assert.Nil(t, g.GeneratePath(12345))
	// cached misses stay misses
	assert.Nil(t, g.GeneratePath(12345))
}

func TestGeneratePath_ExceptionChuteFallsBackToItself(t *testing.T) {
	g, _ := newGenerator(t, nil, lineTopology(t))

	path := g.GeneratePath(exceptionChute)
	require.NotNil(t, path)
	assert.Equal(t, int64(exceptionChute), path.TargetChuteID)
	assert.Equal(t, int64(exceptionChute), path.FallbackChuteID)
}

func TestGeneratePath_Deterministic(t *testing.T) {
	g, _ := newGenerator(t, nil, lineTopology(t))

	first := g.GeneratePath(3)
	require.NotNil(t, first)

	for i := 0; i < 20; i++ {
		next := g.GeneratePath(3)
		require.NotNil(t, next)
		if diff := cmp.Diff(first, next, cmpopts.IgnoreFields(domain.SwitchingPath{}, "GeneratedAt")); diff != "" {
			t.Fatalf("path changed between calls (-first +next):\n%s", diff)
		}
	}
}

func TestGeneratePath_ReturnsCopies(t *testing.T) {
	g, _ := newGenerator(t, nil, lineTopology(t))

	first := g.GeneratePath(3)
	first.Segments[0].DiverterID = "tampered"

	second := g.GeneratePath(3)
	assert.Equal(t, "D1", second.Segments[0].DiverterID)
}

func TestGeneratePath_HonoursHealth(t *testing.T) {
	health := &stubHealth{}
	g, _ := newGenerator(t, health, lineTopology(t))

	require.NotNil(t, g.GeneratePath(3))

	health.nodes = map[string]struct{}{"D2": {}}
	health.version = 1

	assert.Nil(t, g.GeneratePath(3))
	assert.Nil(t, g.GeneratePath(exceptionChute))
	assert.NotNil(t, g.GeneratePath(1))

	health.nodes = nil
	health.version = 2
	assert.NotNil(t, g.GeneratePath(3))
}

func TestRebuild_SwapsSnapshot(t *testing.T) {
	second, err := domain.NewTopology("D1", time.Second,
		[]domain.Node{
			{ID: "D1", IOPoint: "Q0.1", Exits: map[domain.Direction]domain.Exit{
				domain.DirectionLeft:  {ToChute: 1},
				domain.DirectionRight: {ToChute: exceptionChute},
			}},
		},
		[]domain.Chute{{ID: 1}, {ID: exceptionChute}},
	)
	require.NoError(t, err)

	g, src := newGenerator(t, nil, lineTopology(t), second)
	before := g.Topology()

	path := g.GeneratePath(1)
	require.NotNil(t, path)
	assert.Equal(t, domain.DirectionRight, path.Segments[0].TargetDirection)

	require.NoError(t, g.Rebuild(context.Background()))
	assert.Equal(t, 2, src.loads)

	path = g.GeneratePath(1)
	require.NotNil(t, path)
	assert.Equal(t, domain.DirectionLeft, path.Segments[0].TargetDirection)
	assert.Nil(t, g.GeneratePath(3))

	// the old snapshot is untouched
	segs, ok := before.GenerateSegments(3, nil)
	assert.True(t, ok)
	assert.Len(t, segs, 2)
}

func TestRebuild_Errors(t *testing.T) {
	g, src := newGenerator(t, nil, lineTopology(t))

	src.err = errors.New("disk gone")
	err := g.Rebuild(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.NotNil(t, g.GeneratePath(1), "failed rebuild keeps the previous snapshot")

	_, err = NewGenerator(context.Background(), &stubSource{topos: []*domain.Topology{lineTopology(t)}}, nil, 4242, 8)
	assert.ErrorIs(t, err, ErrExceptionChuteMissing)
}

func TestRebuild_ExceptionChuteWithoutExit(t *testing.T) {
	// 999 is declared but no diverter exit leads to it
	orphan, err := domain.NewTopology("D1", time.Second,
		[]domain.Node{
			{ID: "D1", IOPoint: "Q0.1", Exits: map[domain.Direction]domain.Exit{
				domain.DirectionLeft:  {ToChute: 1},
				domain.DirectionRight: {ToChute: 2},
			}},
		},
		[]domain.Chute{{ID: 1}, {ID: 2}, {ID: exceptionChute}},
	)
	require.NoError(t, err)

	_, err = NewGenerator(context.Background(), &stubSource{topos: []*domain.Topology{orphan}}, nil, exceptionChute, 8)
	assert.ErrorIs(t, err, ErrExceptionChuteMissing)

	g, src := newGenerator(t, nil, lineTopology(t))
	src.topos = append(src.topos, orphan)
	err = g.Rebuild(context.Background())
	assert.ErrorIs(t, err, ErrExceptionChuteMissing)
	assert.NotNil(t, g.GeneratePath(3), "rejected rebuild keeps the previous snapshot")
}

func TestGeneratePath_ConcurrentWithRebuild(t *testing.T) {
	g, _ := newGenerator(t, nil, lineTopology(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				path := g.GeneratePath(3)
				if assert.NotNil(t, path) {
					assert.Len(t, path.Segments, 2)
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, g.Rebuild(context.Background()))
	}
	wg.Wait()
}

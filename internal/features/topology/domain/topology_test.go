package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two diverters in a row:
//
//	D1: Left -> chute 2, Right -> chute 1, Straight -> D2
//	D2: Left -> chute 3, Straight -> chute 999
func newLine(t *testing.T) *Topology {
	t.Helper()
	topo, err := NewTopology("D1", time.Second,
		[]Node{
			{ID: "D1", IOPoint: "Q0.1", Exits: map[Direction]Exit{
				DirectionLeft:     {ToChute: 2},
				DirectionRight:    {ToChute: 1},
				DirectionStraight: {ToNode: "D2"},
			}},
			{ID: "D2", IOPoint: "Q0.2", SegmentTTL: 1500 * time.Millisecond, Exits: map[Direction]Exit{
				DirectionLeft:     {ToChute: 3},
				DirectionStraight: {ToChute: 999},
			}},
		},
		[]Chute{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 999, Name: "exception"}},
	)
	require.NoError(t, err)
	return topo
}

func TestGenerateSegments_SingleHop(t *testing.T) {
	topo := newLine(t)

	segs, ok := topo.GenerateSegments(1, nil)
	require.True(t, ok)
	require.Len(t, segs, 1)
	assert.Equal(t, SwitchingPathSegment{
		SequenceNumber:  1,
		DiverterID:      "D1",
		TargetDirection: DirectionRight,
		TTL:             time.Second,
	}, segs[0])

	segs, ok = topo.GenerateSegments(2, nil)
	require.True(t, ok)
	assert.Equal(t, DirectionLeft, segs[0].TargetDirection)
}

func TestGenerateSegments_MultiHop(t *testing.T) {
	topo := newLine(t)

	segs, ok := topo.GenerateSegments(3, nil)
	require.True(t, ok)
	require.Len(t, segs, 2)

	assert.Equal(t, 1, segs[0].SequenceNumber)
	assert.Equal(t, "D1", segs[0].DiverterID)
	assert.Equal(t, DirectionStraight, segs[0].TargetDirection)

	assert.Equal(t, 2, segs[1].SequenceNumber)
	assert.Equal(t, "D2", segs[1].DiverterID)
	assert.Equal(t, DirectionLeft, segs[1].TargetDirection)
	assert.Equal(t, 1500*time.Millisecond, segs[1].TTL)
}

func TestGenerateSegments_Unknown(t *testing.T) {
	topo := newLine(t)

	segs, ok := topo.GenerateSegments(42, nil)
	assert.False(t, ok)
	assert.Nil(t, segs)
}

func TestGenerateSegments_UnhealthyNode(t *testing.T) {
	topo := newLine(t)
	down := map[string]struct{}{"D2": {}}

	_, ok := topo.GenerateSegments(3, down)
	assert.False(t, ok)

	// chute 1 does not cross D2
	_, ok = topo.GenerateSegments(1, down)
	assert.True(t, ok)

	_, ok = topo.GenerateSegments(1, map[string]struct{}{"D1": {}})
	assert.False(t, ok)
}

func TestGenerateSegments_PrefersShortestThenStraight(t *testing.T) {
	// chute 5 is reachable via D1 Straight -> D2 Right and D1 Left -> D3 Right
	topo, err := NewTopology("D1", time.Second,
		[]Node{
			{ID: "D1", IOPoint: "a", Exits: map[Direction]Exit{
				DirectionLeft:     {ToNode: "D3"},
				DirectionStraight: {ToNode: "D2"},
			}},
			{ID: "D2", IOPoint: "b", Exits: map[Direction]Exit{DirectionRight: {ToChute: 5}}},
			{ID: "D3", IOPoint: "c", Exits: map[Direction]Exit{DirectionRight: {ToChute: 5}}},
		},
		[]Chute{{ID: 5}},
	)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		segs, ok := topo.GenerateSegments(5, nil)
		require.True(t, ok)
		require.Len(t, segs, 2)
		assert.Equal(t, "D2", segs[1].DiverterID)
	}

	segs, ok := topo.GenerateSegments(5, map[string]struct{}{"D2": {}})
	require.True(t, ok)
	assert.Equal(t, "D3", segs[1].DiverterID)
	assert.Equal(t, DirectionLeft, segs[0].TargetDirection)
}

func TestNewTopology_Validation(t *testing.T) {
	_, err := NewTopology("MISSING", 0,
		[]Node{
			{ID: "D1", Exits: map[Direction]Exit{
				DirectionLeft:  {ToChute: 7},
				DirectionRight: {ToNode: "D9"},
			}},
			{ID: "D1", IOPoint: "x"},
		},
		[]Chute{{ID: 1}, {ID: 1}},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTopology)

	msg := err.Error()
	assert.Contains(t, msg, "default segment ttl must be positive")
	assert.Contains(t, msg, "duplicate chute 1")
	assert.Contains(t, msg, "duplicate diverter D1")
	assert.Contains(t, msg, "diverter D1 has no io point")
	assert.Contains(t, msg, `entry diverter "MISSING" not found`)
	assert.Contains(t, msg, "unknown chute 7")
	assert.Contains(t, msg, "unknown diverter D9")
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("left")
	require.NoError(t, err)
	assert.Equal(t, DirectionLeft, d)

	_, err = ParseDirection("up")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestSwitchingPath_TotalTTL(t *testing.T) {
	p := &SwitchingPath{Segments: []SwitchingPathSegment{{TTL: time.Second}, {TTL: 500 * time.Millisecond}}}
	assert.Equal(t, 1500*time.Millisecond, p.TotalTTL())
}

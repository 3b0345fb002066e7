package adapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parcel-sorter/internal/features/topology/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `
entry: D1
default_segment_ttl_ms: 2000
chutes:
  - id: 1
  - id: 2
  - id: 999
    name: exception
diverters:
  - id: D1
    io_point: Q0.1
    exits:
      left: {chute: 2}
      right: {chute: 1}
      straight: {diverter: D2}
  - id: D2
    io_point: Q0.2
    segment_ttl_ms: 1500
    exits:
      straight: {chute: 999}
`

func TestParseYAML(t *testing.T) {
	topo, err := ParseYAML([]byte(sampleTopology))
	require.NoError(t, err)

	assert.Equal(t, "D1", topo.Entry())
	assert.True(t, topo.HasChute(999))
	assert.ElementsMatch(t, []string{"D1", "D2"}, topo.NodeIDs())

	segs, ok := topo.GenerateSegments(999, nil)
	require.True(t, ok)
	require.Len(t, segs, 2)
	assert.Equal(t, 2*time.Second, segs[0].TTL)
	assert.Equal(t, 1500*time.Millisecond, segs[1].TTL)
	assert.Equal(t, domain.DirectionStraight, segs[1].TargetDirection)
}

func TestParseYAML_InvalidDirection(t *testing.T) {
	_, err := ParseYAML([]byte(`
entry: D1
default_segment_ttl_ms: 100
chutes: [{id: 1}]
diverters:
  - id: D1
    io_point: Q0.1
    exits:
      up: {chute: 1}
`))
	assert.ErrorIs(t, err, domain.ErrInvalidDirection)
}

func TestParseYAML_MissingIOPoint(t *testing.T) {
	_, err := ParseYAML([]byte(`
entry: D1
default_segment_ttl_ms: 100
chutes: [{id: 1}]
diverters:
  - id: D1
    exits:
      left: {chute: 1}
`))
	require.ErrorIs(t, err, domain.ErrInvalidTopology)
	assert.Contains(t, err.Error(), "no io point")
}

func TestParseYAML_Malformed(t *testing.T) {
	_, err := ParseYAML([]byte("entry: [unclosed"))
	assert.Error(t, err)
}

func TestFileSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTopology), 0644))

	topo, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, topo.HasChute(1))

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}

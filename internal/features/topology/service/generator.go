package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/topology/domain"
	"parcel-sorter/internal/features/topology/ports"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrExceptionChuteMissing is returned when the topology cannot deliver to the exception chute.
var ErrExceptionChuteMissing = errors.New("exception chute is not part of the topology")

type snapshot struct {
	topo    *domain.Topology
	version uint64
}

type cacheKey struct {
	topology uint64
	health   uint64
	chute    int64
}

type cachedSegments struct {
	segments []domain.SwitchingPathSegment
	ok       bool
}

// Generator turns chute ids into switching paths against the current topology
// snapshot, skipping unhealthy diverters.
type Generator struct {
	source         ports.TopologySource
	health         ports.HealthView
	exceptionChute int64

	current  atomic.Pointer[snapshot]
	versions atomic.Uint64
	cache    *lru.Cache
	now      func() time.Time
}

// NewGenerator loads the initial topology. health may be nil.
func NewGenerator(ctx context.Context, source ports.TopologySource, health ports.HealthView, exceptionChute int64, cacheSize int) (*Generator, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create path cache: %w", err)
	}

	g := &Generator{
		source:         source,
		health:         health,
		exceptionChute: exceptionChute,
		cache:          cache,
		now:            time.Now,
	}

	if err := g.Rebuild(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Topology returns the snapshot new paths are generated from.
func (g *Generator) Topology() *domain.Topology {
	return g.current.Load().topo
}

// ExceptionChuteID returns the chute every path falls back to.
func (g *Generator) ExceptionChuteID() int64 {
	return g.exceptionChute
}

// GeneratePath compiles a path to chuteID, or nil when no healthy route exists.
func (g *Generator) GeneratePath(chuteID int64) *domain.SwitchingPath {
	snap := g.current.Load()

	unhealthy, healthVersion := map[string]struct{}(nil), uint64(0)
	if g.health != nil {
		unhealthy, healthVersion = g.health.UnhealthyNodes()
	}

	key := cacheKey{topology: snap.version, health: healthVersion, chute: chuteID}

	var entry cachedSegments
	if v, ok := g.cache.Get(key); ok {
		entry = v.(cachedSegments)
	} else {
		segments, ok := snap.topo.GenerateSegments(chuteID, unhealthy)
		entry = cachedSegments{segments: segments, ok: ok}
		g.cache.Add(key, entry)
	}

	if !entry.ok {
		logger.Named("topology").Debug("No path to chute",
			zap.Int64("chute_id", chuteID),
			zap.Int("unhealthy_nodes", len(unhealthy)),
		)
		return nil
	}

	segments := make([]domain.SwitchingPathSegment, len(entry.segments))
	copy(segments, entry.segments)

	return &domain.SwitchingPath{
		TargetChuteID:   chuteID,
		FallbackChuteID: g.exceptionChute,
		Segments:        segments,
		GeneratedAt:     g.now(),
	}
}

// Rebuild reloads the topology and swaps it in. Callers already holding the
// previous snapshot keep using it.
func (g *Generator) Rebuild(ctx context.Context) error {
	topo, err := g.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load topology: %w", err)
	}
	if _, ok := topo.GenerateSegments(g.exceptionChute, nil); !ok {
		return fmt.Errorf("%w: %d", ErrExceptionChuteMissing, g.exceptionChute)
	}

	version := g.versions.Inc()
	g.current.Store(&snapshot{topo: topo, version: version})
	g.cache.Purge()

	logger.Named("topology").Info("Topology loaded",
		zap.Uint64("version", version),
		zap.Int("diverters", len(topo.NodeIDs())),
		zap.Int("chutes", len(topo.ChuteIDs())),
	)
	return nil
}

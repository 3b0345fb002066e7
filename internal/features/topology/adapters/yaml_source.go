package adapters

import (
	"context"
	"fmt"
	"os"
	"time"

	"parcel-sorter/internal/features/topology/domain"

	"gopkg.in/yaml.v3"
)

// topologyFile is the on-disk layout:
//
//	entry: D1
//	default_segment_ttl_ms: 2000
//	chutes:
//	  - id: 1
//	  - id: 999
//	    name: exception
//	diverters:
//	  - id: D1
//	    io_point: Q0.1
//	    exits:
//	      right: {chute: 1}
//	      straight: {diverter: D2}
type topologyFile struct {
	Entry               string        `yaml:"entry"`
	DefaultSegmentTTLMs int           `yaml:"default_segment_ttl_ms"`
	Chutes              []chuteDTO    `yaml:"chutes"`
	Diverters           []diverterDTO `yaml:"diverters"`
}

type chuteDTO struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

type diverterDTO struct {
	ID           string             `yaml:"id"`
	IOPoint      string             `yaml:"io_point"`
	SegmentTTLMs int                `yaml:"segment_ttl_ms"`
	Exits        map[string]exitDTO `yaml:"exits"`
}

type exitDTO struct {
	Diverter string `yaml:"diverter"`
	Chute    int64  `yaml:"chute"`
}

// FileSource reads the topology from a YAML file on every Load.
type FileSource struct {
	path string
}

// NewFileSource creates a new FileSource.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load reads and validates the file.
func (s *FileSource) Load(ctx context.Context) (*domain.Topology, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file %s: %w", s.path, err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes and validates a topology document.
func ParseYAML(data []byte) (*domain.Topology, error) {
	var file topologyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode topology: %w", err)
	}

	chutes := make([]domain.Chute, 0, len(file.Chutes))
	for _, c := range file.Chutes {
		chutes = append(chutes, domain.Chute{ID: c.ID, Name: c.Name})
	}

	nodes := make([]domain.Node, 0, len(file.Diverters))
	for _, d := range file.Diverters {
		exits := make(map[domain.Direction]domain.Exit, len(d.Exits))
		for name, e := range d.Exits {
			dir, err := domain.ParseDirection(name)
			if err != nil {
				return nil, fmt.Errorf("diverter %s: %w", d.ID, err)
			}
			exits[dir] = domain.Exit{ToNode: e.Diverter, ToChute: e.Chute}
		}
		nodes = append(nodes, domain.Node{
			ID:         d.ID,
			IOPoint:    d.IOPoint,
			SegmentTTL: time.Duration(d.SegmentTTLMs) * time.Millisecond,
			Exits:      exits,
		})
	}

	return domain.NewTopology(file.Entry, time.Duration(file.DefaultSegmentTTLMs)*time.Millisecond, nodes, chutes)
}

// StaticSource serves a fixed topology. It is used by the debug CLI and tests.
type StaticSource struct {
	Topology *domain.Topology
}

// Load returns the fixed topology.
func (s StaticSource) Load(ctx context.Context) (*domain.Topology, error) {
	return s.Topology, nil
}

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Direction is the way a diverter steers a parcel.
type Direction string

const (
	DirectionStraight Direction = "Straight"
	DirectionLeft     Direction = "Left"
	DirectionRight    Direction = "Right"
)

// directionOrder is the order in which exits are explored.
var directionOrder = []Direction{DirectionStraight, DirectionLeft, DirectionRight}

// ParseDirection accepts the canonical names case-insensitively.
func ParseDirection(s string) (Direction, error) {
	for _, d := range directionOrder {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

var (
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidTopology  = errors.New("invalid topology")
)

// Exit is where a diverter sends a parcel in one direction: another diverter or a chute.
type Exit struct {
	ToNode  string `json:"to_node,omitempty"`
	ToChute int64  `json:"to_chute,omitempty"`
}

// Node is a wheel diverter.
type Node struct {
	ID string `json:"id"`
	// IOPoint is the driver address the diverter is wired to.
	IOPoint string `json:"io_point"`
	// SegmentTTL is the time budget to cross this diverter. Zero uses the topology default.
	SegmentTTL time.Duration      `json:"segment_ttl"`
	Exits      map[Direction]Exit `json:"exits"`
}

// Chute is a physical exit bin.
type Chute struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Topology is an immutable graph of diverters and chutes rooted at the entry node.
type Topology struct {
	entry      string
	defaultTTL time.Duration
	nodes      map[string]Node
	chutes     map[int64]Chute
}

// NewTopology validates and builds a topology. Every problem is reported.
func NewTopology(entry string, defaultTTL time.Duration, nodes []Node, chutes []Chute) (*Topology, error) {
	t := &Topology{
		entry:      entry,
		defaultTTL: defaultTTL,
		nodes:      make(map[string]Node, len(nodes)),
		chutes:     make(map[int64]Chute, len(chutes)),
	}

	var err error

	if defaultTTL <= 0 {
		err = multierr.Append(err, errors.New("default segment ttl must be positive"))
	}

	for _, c := range chutes {
		if c.ID <= 0 {
			err = multierr.Append(err, fmt.Errorf("chute id must be positive, got %d", c.ID))
			continue
		}
		if _, dup := t.chutes[c.ID]; dup {
			err = multierr.Append(err, fmt.Errorf("duplicate chute %d", c.ID))
			continue
		}
		t.chutes[c.ID] = c
	}

	for _, n := range nodes {
		if n.ID == "" {
			err = multierr.Append(err, errors.New("diverter without id"))
			continue
		}
		if _, dup := t.nodes[n.ID]; dup {
			err = multierr.Append(err, fmt.Errorf("duplicate diverter %s", n.ID))
			continue
		}
		if n.IOPoint == "" {
			err = multierr.Append(err, fmt.Errorf("diverter %s has no io point", n.ID))
		}
		exits := make(map[Direction]Exit, len(n.Exits))
		for d, e := range n.Exits {
			exits[d] = e
		}
		n.Exits = exits
		t.nodes[n.ID] = n
	}

	if _, ok := t.nodes[entry]; !ok {
		err = multierr.Append(err, fmt.Errorf("entry diverter %q not found", entry))
	}

	for _, n := range nodes {
		for d, e := range n.Exits {
			switch {
			case e.ToNode != "" && e.ToChute != 0:
				err = multierr.Append(err, fmt.Errorf("diverter %s exit %s targets both a diverter and a chute", n.ID, d))
			case e.ToNode != "":
				if _, ok := t.nodes[e.ToNode]; !ok {
					err = multierr.Append(err, fmt.Errorf("diverter %s exit %s targets unknown diverter %s", n.ID, d, e.ToNode))
				}
			case e.ToChute != 0:
				if _, ok := t.chutes[e.ToChute]; !ok {
					err = multierr.Append(err, fmt.Errorf("diverter %s exit %s targets unknown chute %d", n.ID, d, e.ToChute))
				}
			default:
				err = multierr.Append(err, fmt.Errorf("diverter %s exit %s has no target", n.ID, d))
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}
	return t, nil
}

// Entry returns the id of the first diverter a parcel meets.
func (t *Topology) Entry() string { return t.entry }

// HasChute reports whether the chute is part of the topology.
func (t *Topology) HasChute(id int64) bool {
	_, ok := t.chutes[id]
	return ok
}

// NodeIDs returns every diverter id.
func (t *Topology) NodeIDs() []string {
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Node returns a diverter by id.
func (t *Topology) Node(id string) (Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// ChuteIDs returns every chute id.
func (t *Topology) ChuteIDs() []int64 {
	ids := make([]int64, 0, len(t.chutes))
	for id := range t.chutes {
		ids = append(ids, id)
	}
	return ids
}

type hop struct {
	from      string
	direction Direction
}

// GenerateSegments returns the diverter commands that steer a parcel from the entry
// node to the chute. Diverters in unhealthy are never traversed. The bool is false
// when the chute is unknown or unreachable.
//
// The walk is breadth first and explores exits in Straight, Left, Right order, so
// the result is the shortest path and is stable for a given graph.
func (t *Topology) GenerateSegments(targetChuteID int64, unhealthy map[string]struct{}) ([]SwitchingPathSegment, bool) {
	if !t.HasChute(targetChuteID) {
		return nil, false
	}
	if _, down := unhealthy[t.entry]; down {
		return nil, false
	}

	parents := map[string]hop{t.entry: {}}
	queue := []string{t.entry}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node := t.nodes[id]

		for _, d := range directionOrder {
			exit, ok := node.Exits[d]
			if !ok {
				continue
			}
			if exit.ToChute == targetChuteID {
				return t.segmentsTo(parents, id, d), true
			}
			if exit.ToNode == "" {
				continue
			}
			if _, seen := parents[exit.ToNode]; seen {
				continue
			}
			if _, down := unhealthy[exit.ToNode]; down {
				continue
			}
			parents[exit.ToNode] = hop{from: id, direction: d}
			queue = append(queue, exit.ToNode)
		}
	}

	return nil, false
}

func (t *Topology) segmentsTo(parents map[string]hop, last string, lastDirection Direction) []SwitchingPathSegment {
	var reversed []SwitchingPathSegment
	id, d := last, lastDirection
	for {
		reversed = append(reversed, SwitchingPathSegment{
			DiverterID:      id,
			TargetDirection: d,
			TTL:             t.ttlOf(id),
		})
		if id == t.entry {
			break
		}
		h := parents[id]
		id, d = h.from, h.direction
	}

	segments := make([]SwitchingPathSegment, len(reversed))
	for i := range reversed {
		s := reversed[len(reversed)-1-i]
		s.SequenceNumber = i + 1
		segments[i] = s
	}
	return segments
}

func (t *Topology) ttlOf(id string) time.Duration {
	if n := t.nodes[id]; n.SegmentTTL > 0 {
		return n.SegmentTTL
	}
	return t.defaultTTL
}

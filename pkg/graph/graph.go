// Package graph turns a flat person/relationship projection into a
// validated graph with deterministic positions and edge styling.
package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kinship-crm/kinship/pkg/common"
)

var (
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrUnknownNode   = errors.New("edge references unknown node")
	ErrUnknownCenter = errors.New("center is not a node of the graph")
)

// Node is a person in the graph.
type Node struct {
	ID     int64  `json:"id"`
	Label  string `json:"label"`
	Avatar string `json:"avatar,omitempty"`
}

// Edge is one stored relationship. Source and Target must name nodes.
type Edge struct {
	ID        int64  `json:"id"`
	Source    int64  `json:"source"`
	Target    int64  `json:"target"`
	TypeID    int64  `json:"relationship_type_id"`
	Label     string `json:"label,omitempty"`
	Category  string `json:"category"`
	Strength  *int   `json:"strength"`
	Symmetric bool   `json:"is_symmetric"`
}

// Graph is an immutable, validated node/edge set. Nodes are held in id
// order so every derived value is independent of input order.
type Graph struct {
	nodes  []Node
	edges  []Edge
	center *int64
	index  map[int64]int
	opts   Options
}

// New validates nodes and edges and returns a graph. center may be nil for
// a population-wide view.
func New(nodes []Node, edges []Edge, center *int64, opts ...Option) (*Graph, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b Node) int { return compareID(a.ID, b.ID) })

	index := make(map[int64]int, len(sorted))
	for i, n := range sorted {
		if _, ok := index[n.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateNode, n.ID)
		}
		index[n.ID] = i
	}

	for _, e := range edges {
		if _, ok := index[e.Source]; !ok {
			return nil, fmt.Errorf("%w: edge %d source %d", ErrUnknownNode, e.ID, e.Source)
		}
		if _, ok := index[e.Target]; !ok {
			return nil, fmt.Errorf("%w: edge %d target %d", ErrUnknownNode, e.ID, e.Target)
		}
	}

	var c *int64
	if center != nil {
		if _, ok := index[*center]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCenter, *center)
		}
		id := *center
		c = &id
	}

	return &Graph{
		nodes:  sorted,
		edges:  slices.Clone(edges),
		center: c,
		index:  index,
		opts:   o,
	}, nil
}

// FromProjection builds a graph from the API's graph projection.
func FromProjection(p common.GraphProjection, opts ...Option) (*Graph, error) {
	symmetric := make(map[int64]bool, len(p.RelationshipTypes))
	for _, t := range p.RelationshipTypes {
		symmetric[t.ID] = t.IsSymmetric
	}

	nodes := make([]Node, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		nodes = append(nodes, Node{ID: n.ID, Label: n.Label, Avatar: n.Avatar})
	}
	edges := make([]Edge, 0, len(p.Edges))
	for _, e := range p.Edges {
		sym := e.IsSymmetric
		if v, ok := symmetric[e.RelationshipTypeID]; ok {
			sym = v
		}
		edges = append(edges, Edge{
			ID:        e.ID,
			Source:    e.Source,
			Target:    e.Target,
			TypeID:    e.RelationshipTypeID,
			Label:     e.Label,
			Category:  e.Category,
			Strength:  e.Strength,
			Symmetric: sym,
		})
	}
	return New(nodes, edges, p.CenterPersonID, opts...)
}

func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Center returns the focal node id, if any.
func (g *Graph) Center() (int64, bool) {
	if g.center == nil {
		return 0, false
	}
	return *g.center, true
}

// Neighbors returns the ids adjacent to id in either direction, sorted.
func (g *Graph) Neighbors(id int64) []int64 {
	seen := map[int64]struct{}{}
	for _, e := range g.edges {
		switch id {
		case e.Source:
			seen[e.Target] = struct{}{}
		case e.Target:
			seen[e.Source] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

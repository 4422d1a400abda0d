package graph

import "github.com/kinship-crm/kinship/pkg/common"

// EdgeStyle is how an edge is drawn.
type EdgeStyle struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Arrow bool    `json:"arrow"`
}

// Style returns the drawing style for e. Unknown categories take the custom
// color, strength beyond MaxStrength draws like MaxStrength, and only
// asymmetric edges get an arrow head.
func (o Options) Style(e Edge) EdgeStyle {
	color, ok := o.Colors[e.Category]
	if !ok {
		color = o.Colors[common.CategoryCustom]
	}
	return EdgeStyle{
		Color: color,
		Width: o.StrokeWidth(e.Strength),
		Arrow: !e.Symmetric,
	}
}

// StrokeWidth maps a strength to a line width. Nil and non-positive
// strengths give the base width.
func (o Options) StrokeWidth(strength *int) float64 {
	if strength == nil || *strength <= 0 {
		return o.BaseWidth
	}
	s := min(*strength, o.MaxStrength)
	return o.BaseWidth + float64(s)*o.WidthStep
}

type RenderedNode struct {
	Node
	Point
	Focal bool `json:"focal"`
}

type RenderedEdge struct {
	Edge
	EdgeStyle
}

// Rendered is a drawable graph.
type Rendered struct {
	Nodes    []RenderedNode `json:"nodes"`
	Edges    []RenderedEdge `json:"edges"`
	CenterID *int64         `json:"center_id"`
}

// Render combines the layout and the edge styles. Nodes come out in id
// order, edges in input order.
func (g *Graph) Render() Rendered {
	pos := g.Layout()

	nodes := make([]RenderedNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, RenderedNode{
			Node:  n,
			Point: pos[n.ID],
			Focal: g.center != nil && *g.center == n.ID,
		})
	}
	edges := make([]RenderedEdge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, RenderedEdge{Edge: e, EdgeStyle: g.opts.Style(e)})
	}

	var center *int64
	if g.center != nil {
		id := *g.center
		center = &id
	}
	return Rendered{Nodes: nodes, Edges: edges, CenterID: center}
}

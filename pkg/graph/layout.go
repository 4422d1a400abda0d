package graph

import (
	"math"

	"github.com/kinship-crm/kinship/pkg/common"
)

// Point is a position in layout space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Options controls layout geometry and edge styling.
type Options struct {
	Anchor      Point
	MinRadius   float64
	NodeSpacing float64

	BaseWidth   float64
	WidthStep   float64
	MaxStrength int

	Colors map[string]string
}

type Option func(*Options)

func DefaultOptions() Options {
	return Options{
		Anchor:      Point{X: 400, Y: 300},
		MinRadius:   150,
		NodeSpacing: 90,
		BaseWidth:   1,
		WidthStep:   1,
		MaxStrength: 5,
		Colors: map[string]string{
			common.CategoryFamily:       "#e11d48",
			common.CategoryProfessional: "#2563eb",
			common.CategorySocial:       "#16a34a",
			common.CategoryCustom:       "#9333ea",
		},
	}
}

// WithAnchor moves the focal point of the layout.
func WithAnchor(x, y float64) Option {
	return func(o *Options) {
		o.Anchor = Point{X: x, Y: y}
	}
}

// WithRadius sets the minimum circle radius and the arc length reserved per
// node on the circle.
func WithRadius(minRadius, nodeSpacing float64) Option {
	return func(o *Options) {
		o.MinRadius = minRadius
		o.NodeSpacing = nodeSpacing
	}
}

// WithStrokeWidth sets the base edge width, the increment per strength step
// and the strength above which the width stops growing.
func WithStrokeWidth(base, step float64, maxStrength int) Option {
	return func(o *Options) {
		o.BaseWidth = base
		o.WidthStep = step
		o.MaxStrength = maxStrength
	}
}

// Radius returns the ring radius for n nodes. It is non-decreasing in n and
// never below MinRadius.
func (o Options) Radius(n int) float64 {
	return math.Max(o.MinRadius, float64(n)*o.NodeSpacing/(2*math.Pi))
}

// Layout assigns every node a position. The focal node sits on the anchor
// and the others are spread evenly on a ring around it, starting at the top
// and proceeding clockwise in id order. Without a focal node all nodes go on
// the ring, except a lone node which takes the anchor.
func (g *Graph) Layout() map[int64]Point {
	out := make(map[int64]Point, len(g.nodes))
	if len(g.nodes) == 0 {
		return out
	}

	ring := make([]int64, 0, len(g.nodes))
	for _, n := range g.nodes {
		if g.center != nil && n.ID == *g.center {
			out[n.ID] = g.opts.Anchor
			continue
		}
		ring = append(ring, n.ID)
	}

	if g.center == nil && len(ring) == 1 {
		out[ring[0]] = g.opts.Anchor
		return out
	}

	r := g.opts.Radius(len(ring))
	for i, id := range ring {
		angle := -math.Pi/2 + 2*math.Pi*float64(i)/float64(len(ring))
		out[id] = Point{
			X: round(g.opts.Anchor.X + r*math.Cos(angle)),
			Y: round(g.opts.Anchor.Y + r*math.Sin(angle)),
		}
	}
	return out
}

// round trims floating noise so equal layouts compare equal after a JSON
// round trip.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

package routing

import (
	"context"
	"fmt"

	"github.com/azybler/routeviz/pkg/geo"
	"github.com/azybler/routeviz/pkg/graph"
)

// Registry holds one strategy instance per Kind, all bound to the same
// graph. Build a new Registry when the graph changes.
type Registry struct {
	g          *graph.Graph
	components []uint32
	strategies map[Kind]Strategy
}

// NewRegistry creates every strategy for g. Connected components are
// labelled once so that queries between disconnected nodes return an empty
// path without searching.
func NewRegistry(g *graph.Graph, opts Options) *Registry {
	r := &Registry{
		g:          g,
		components: graph.Components(g),
		strategies: make(map[Kind]Strategy, len(kinds)),
	}
	for _, k := range kinds {
		s, err := New(k, g, opts)
		if err != nil {
			panic(err) // every entry of kinds is handled by New
		}
		r.strategies[k] = &componentGuard{inner: s, g: g, components: r.components}
	}
	return r
}

// Get returns the strategy for kind.
func (r *Registry) Get(kind Kind) (Strategy, error) {
	s, ok := r.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, kind)
	}
	return s, nil
}

// Graph returns the graph the strategies are bound to.
func (r *Registry) Graph() *graph.Graph {
	return r.g
}

// SameComponent reports whether a and b are connected. Ids outside the
// graph are never connected.
func (r *Registry) SameComponent(a, b uint32) bool {
	n := uint32(len(r.components))
	return a < n && b < n && r.components[a] == r.components[b]
}

type componentGuard struct {
	inner      Strategy
	g          *graph.Graph
	components []uint32
}

func (c *componentGuard) Find(ctx context.Context, from, to uint32) ([]uint32, error) {
	if from < c.g.NumNodes && to < c.g.NumNodes && c.components[from] != c.components[to] {
		return []uint32{}, nil
	}
	return c.inner.Find(ctx, from, to)
}

// PathLength sums the Euclidean lengths of the segments of path.
func PathLength(g *graph.Graph, path []uint32) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += g.Dist(path[i-1], path[i])
	}
	return total
}

// PathPoints maps node ids to their coordinates.
func PathPoints(g *graph.Graph, path []uint32) []geo.Point {
	pts := make([]geo.Point, len(path))
	for i, u := range path {
		pts[i] = g.Point(u)
	}
	return pts
}

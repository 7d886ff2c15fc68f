// Package routing implements the interchangeable pathfinding strategies of
// the route planner.
package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/azybler/routeviz/pkg/graph"
)

var (
	// ErrUnknownAlgorithm is returned for an algorithm key outside Kinds().
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrNodeNotFound is returned when a search endpoint is not a graph node.
	ErrNodeNotFound = errors.New("node not found")
)

// Kind names a pathfinding algorithm. The string value is the key used in
// URLs and configuration.
type Kind string

const (
	KindGreedy   Kind = "a-greedy-star"
	KindNBA      Kind = "nba"
	KindAStar    Kind = "astar-uni"
	KindDijkstra Kind = "dijkstra"
)

var kinds = []Kind{KindGreedy, KindNBA, KindAStar, KindDijkstra}

// Kinds lists every supported algorithm in display order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind maps an algorithm key to its Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

func (k Kind) String() string { return string(k) }

// Optimal reports whether the algorithm guarantees a shortest path under a
// consistent heuristic.
func (k Kind) Optimal() bool {
	return k != KindGreedy
}

// Strategy finds a path between two nodes.
//
// Find returns node ids ordered from `from` to `to`. An empty, non-nil
// slice means the nodes are not connected. Ids outside the graph yield
// ErrNodeNotFound; a cancelled ctx yields ctx.Err().
type Strategy interface {
	Find(ctx context.Context, from, to uint32) ([]uint32, error)
}

// CostFunc measures the cost between two nodes.
type CostFunc func(a, b uint32) float64

// Options configures a Strategy. Zero fields fall back to the Euclidean
// distance between node coordinates.
type Options struct {
	// Distance is the cost of traversing the link a-b.
	Distance CostFunc
	// Heuristic estimates the remaining cost from a to b. It must not
	// overestimate for the optimal strategies to stay optimal.
	Heuristic CostFunc
}

func (o Options) withDefaults(g *graph.Graph) Options {
	if o.Distance == nil {
		o.Distance = g.Dist
	}
	if o.Heuristic == nil {
		o.Heuristic = g.Dist
	}
	return o
}

// New creates the strategy of the given kind bound to g.
func New(kind Kind, g *graph.Graph, opts Options) (Strategy, error) {
	s := search{g: g, opts: opts.withDefaults(g)}
	switch kind {
	case KindGreedy:
		return &greedy{search: s}, nil
	case KindNBA:
		return &nba{search: s}, nil
	case KindAStar:
		return &astar{search: s, informed: true}, nil
	case KindDijkstra:
		return &astar{search: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, kind)
}

package graph

import (
	"github.com/paulmach/orb"

	"github.com/azybler/routeviz/pkg/geo"
)

// Graph is an undirected road network in CSR (Compressed Sparse Row) format.
// Every undirected link is stored as two directed arcs.
type Graph struct {
	NumNodes uint32
	NumEdges uint32    // directed arcs, always 2x the number of links
	FirstOut []uint32  // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are arcs from node i
	Head     []uint32  // len: NumEdges; target node for each arc
	X        []float64 // len: NumNodes; projected x (Web Mercator meters)
	Y        []float64 // len: NumNodes
}

// Node is a graph vertex with its coordinates.
type Node struct {
	ID uint32
	X  float64
	Y  float64
}

// EdgesFrom returns the range of arc indices for arcs originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// HasNode reports whether id names a node of g. Negative ids never do.
func (g *Graph) HasNode(id int64) bool {
	return id >= 0 && id < int64(g.NumNodes)
}

// Node looks up a node by id.
func (g *Graph) Node(id int64) (Node, bool) {
	if !g.HasNode(id) {
		return Node{}, false
	}
	u := uint32(id)
	return Node{ID: u, X: g.X[u], Y: g.Y[u]}, true
}

// Point returns the coordinates of node u.
func (g *Graph) Point(u uint32) geo.Point {
	return geo.Point{g.X[u], g.Y[u]}
}

// Dist is the Euclidean distance between nodes a and b.
func (g *Graph) Dist(a, b uint32) float64 {
	return geo.DistXY(g.X[a], g.Y[a], g.X[b], g.Y[b])
}

// LinkCount returns the number of undirected links.
func (g *Graph) LinkCount() uint32 {
	return g.NumEdges / 2
}

// Points returns the flat coordinate array [x0, y0, x1, y1, ...].
// Flat index i belongs to node i/2.
func (g *Graph) Points() []float64 {
	flat := make([]float64, 0, 2*int(g.NumNodes))
	for u := uint32(0); u < g.NumNodes; u++ {
		flat = append(flat, g.X[u], g.Y[u])
	}
	return flat
}

// Bound returns the bounding box of all node coordinates.
func (g *Graph) Bound() orb.Bound {
	if g.NumNodes == 0 {
		return orb.Bound{}
	}
	b := g.Point(0).Bound()
	for u := uint32(1); u < g.NumNodes; u++ {
		b = b.Extend(g.Point(u))
	}
	return b
}

package graph

import (
	"sort"

	"github.com/paulmach/osm"

	"github.com/azybler/routeviz/pkg/geo"
	osmparser "github.com/azybler/routeviz/pkg/osm"
)

// Build creates a CSR Graph from parsed OSM road segments. Coordinates are
// projected to Web Mercator so edge costs can be Euclidean.
func Build(result *osmparser.ParseResult) *Graph {
	edges := result.Edges
	if len(edges) == 0 {
		return &Graph{}
	}

	b := NewBuilder()

	// Collect all unique node IDs and build a compact mapping.
	nodeSet := make(map[osm.NodeID]uint32)
	addNode := func(id osm.NodeID) uint32 {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		p := geo.Project(result.NodeLat[id], result.NodeLon[id])
		idx := b.AddNode(p[0], p[1])
		nodeSet[id] = idx
		return idx
	}

	for i := range edges {
		u := addNode(edges[i].FromNodeID)
		v := addNode(edges[i].ToNodeID)
		b.AddLink(u, v)
	}

	return b.Build()
}

// Builder accumulates nodes and undirected links before freezing them
// into a CSR Graph.
type Builder struct {
	x, y  []float64
	links [][2]uint32
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode appends a node and returns its id.
func (b *Builder) AddNode(x, y float64) uint32 {
	b.x = append(b.x, x)
	b.y = append(b.y, y)
	return uint32(len(b.x) - 1)
}

// AddLink records an undirected link. Self-loops are ignored.
func (b *Builder) AddLink(u, v uint32) {
	if u == v {
		return
	}
	if u > v {
		u, v = v, u
	}
	b.links = append(b.links, [2]uint32{u, v})
}

// Build freezes the builder into a Graph. Duplicate links collapse to one.
func (b *Builder) Build() *Graph {
	numNodes := uint32(len(b.x))
	if numNodes == 0 {
		return &Graph{}
	}

	// Sort and dedupe undirected links.
	links := b.links
	sort.Slice(links, func(i, j int) bool {
		if links[i][0] != links[j][0] {
			return links[i][0] < links[j][0]
		}
		return links[i][1] < links[j][1]
	})
	uniq := links[:0]
	for i, l := range links {
		if i > 0 && l == links[i-1] {
			continue
		}
		uniq = append(uniq, l)
	}

	// Expand into directed arcs.
	numEdges := uint32(2 * len(uniq))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)

	// Build FirstOut via counting.
	for _, l := range uniq {
		firstOut[l[0]+1]++
		firstOut[l[1]+1]++
	}
	// Prefix sum.
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	pos := make([]uint32, numNodes)
	copy(pos, firstOut[:numNodes])
	for _, l := range uniq {
		head[pos[l[0]]] = l[1]
		pos[l[0]]++
		head[pos[l[1]]] = l[0]
		pos[l[1]]++
	}

	x := make([]float64, numNodes)
	y := make([]float64, numNodes)
	copy(x, b.x)
	copy(y, b.y)

	return &Graph{
		NumNodes: numNodes,
		NumEdges: numEdges,
		FirstOut: firstOut,
		Head:     head,
		X:        x,
		Y:        y,
	}
}

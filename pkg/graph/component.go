package graph

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte // max rank stays near log2(n)
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}

	// Union by rank.
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Components labels every node with the representative of its connected
// component. Two nodes are mutually reachable iff their labels are equal.
func Components(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}

	uf := NewUnionFind(g.NumNodes)
	for u := uint32(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			uf.Union(u, g.Head[e])
		}
	}

	labels := make([]uint32, g.NumNodes)
	for i := range labels {
		labels[i] = uf.Find(uint32(i))
	}
	return labels
}

// LargestComponent returns the node indices belonging to the largest
// connected component.
func LargestComponent(g *Graph) []uint32 {
	labels := Components(g)
	if labels == nil {
		return nil
	}

	size := make(map[uint32]uint32)
	bestRoot := labels[0]
	for _, root := range labels {
		size[root]++
		if size[root] > size[bestRoot] {
			bestRoot = root
		}
	}

	nodes := make([]uint32, 0, size[bestRoot])
	for i, root := range labels {
		if root == bestRoot {
			nodes = append(nodes, uint32(i))
		}
	}

	return nodes
}

// FilterToComponent creates a new graph containing only the specified nodes.
// Node ids are renumbered densely in the order given.
func FilterToComponent(g *Graph, nodes []uint32) *Graph {
	if len(nodes) == 0 {
		return &Graph{}
	}

	// Build old->new node index mapping.
	oldToNew := make(map[uint32]uint32, len(nodes))
	b := NewBuilder()
	for _, oldIdx := range nodes {
		oldToNew[oldIdx] = b.AddNode(g.X[oldIdx], g.Y[oldIdx])
	}

	// Keep links that are fully within the component. Each link is seen
	// from both ends; the builder dedupes.
	for _, oldU := range nodes {
		start, end := g.EdgesFrom(oldU)
		for e := start; e < end; e++ {
			if newV, ok := oldToNew[g.Head[e]]; ok {
				b.AddLink(oldToNew[oldU], newV)
			}
		}
	}

	return b.Build()
}

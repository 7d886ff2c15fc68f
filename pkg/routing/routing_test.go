package routing

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/routeviz/pkg/graph"
)

// buildTestGraph creates a small grid-like graph plus an isolated pair.
//
//	0 --- 1 --- 2
//	|           |
//	3 --- 4 --- 5        6 --- 7
//
// Coordinates in meters; 0..5 form a 2x3 grid with spacing 100.
func buildTestGraph(t testing.TB) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	coords := [][2]float64{
		{0, 0}, {100, 0}, {200, 0},
		{0, 100}, {100, 100}, {200, 100},
		{1000, 1000}, {1100, 1000},
	}
	for _, c := range coords {
		b.AddNode(c[0], c[1])
	}
	for _, l := range [][2]uint32{{0, 1}, {1, 2}, {0, 3}, {2, 5}, {3, 4}, {4, 5}, {6, 7}} {
		b.AddLink(l[0], l[1])
	}
	return b.Build()
}

// randomGraph scatters n nodes in a square and links each node to its k
// nearest neighbours. The result is usually, but not always, connected.
func randomGraph(t testing.TB, seed int64, n, k int) *graph.Graph {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	b := graph.NewBuilder()
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := range n {
		xs[i], ys[i] = rng.Float64()*10_000, rng.Float64()*10_000
		b.AddNode(xs[i], ys[i])
	}
	for i := range n {
		type cand struct {
			j int
			d float64
		}
		var near []cand
		for j := range n {
			if j == i {
				continue
			}
			d := math.Hypot(xs[i]-xs[j], ys[i]-ys[j])
			near = append(near, cand{j, d})
			for p := len(near) - 1; p > 0 && near[p].d < near[p-1].d; p-- {
				near[p], near[p-1] = near[p-1], near[p]
			}
			if len(near) > k {
				near = near[:k]
			}
		}
		for _, c := range near {
			b.AddLink(uint32(i), uint32(c.j))
		}
	}
	return b.Build()
}

func allStrategies(t testing.TB, g *graph.Graph) map[Kind]Strategy {
	t.Helper()
	out := make(map[Kind]Strategy)
	for _, k := range Kinds() {
		s, err := New(k, g, Options{})
		require.NoError(t, err)
		out[k] = s
	}
	return out
}

// assertValidPath checks the path is a chain of links from..to.
func assertValidPath(t *testing.T, g *graph.Graph, path []uint32, from, to uint32) {
	t.Helper()
	require.NotEmpty(t, path)
	assert.Equal(t, from, path[0])
	assert.Equal(t, to, path[len(path)-1])
	for i := 1; i < len(path); i++ {
		assert.True(t, linked(g, path[i-1], path[i]), "no link %d-%d", path[i-1], path[i])
	}
}

func linked(g *graph.Graph, u, v uint32) bool {
	start, end := g.EdgesFrom(u)
	for e := start; e < end; e++ {
		if g.Head[e] == v {
			return true
		}
	}
	return false
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("bogus")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	_, err = New("bogus", buildTestGraph(t), Options{})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestKindOptimal(t *testing.T) {
	assert.False(t, KindGreedy.Optimal())
	assert.True(t, KindNBA.Optimal())
	assert.True(t, KindAStar.Optimal())
	assert.True(t, KindDijkstra.Optimal())
}

func TestFindSimplePath(t *testing.T) {
	g := buildTestGraph(t)
	for kind, s := range allStrategies(t, g) {
		t.Run(string(kind), func(t *testing.T) {
			path, err := s.Find(context.Background(), 0, 5)
			require.NoError(t, err)
			assertValidPath(t, g, path, 0, 5)
			assert.InDelta(t, 300, PathLength(g, path), 1e-9)
		})
	}
}

func TestFindSameNode(t *testing.T) {
	g := buildTestGraph(t)
	for kind, s := range allStrategies(t, g) {
		t.Run(string(kind), func(t *testing.T) {
			path, err := s.Find(context.Background(), 4, 4)
			require.NoError(t, err)
			assert.Equal(t, []uint32{4}, path)
		})
	}
}

func TestFindUnreachable(t *testing.T) {
	g := buildTestGraph(t)
	for kind, s := range allStrategies(t, g) {
		t.Run(string(kind), func(t *testing.T) {
			path, err := s.Find(context.Background(), 0, 7)
			require.NoError(t, err)
			assert.NotNil(t, path)
			assert.Empty(t, path)
		})
	}
}

func TestFindNodeNotFound(t *testing.T) {
	g := buildTestGraph(t)
	for kind, s := range allStrategies(t, g) {
		t.Run(string(kind), func(t *testing.T) {
			_, err := s.Find(context.Background(), 0, 99)
			assert.ErrorIs(t, err, ErrNodeNotFound)
			_, err = s.Find(context.Background(), 99, 0)
			assert.ErrorIs(t, err, ErrNodeNotFound)
		})
	}
}

// gridGraph builds a connected side x side grid with spacing 10.
func gridGraph(t testing.TB, side int) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	for r := range side {
		for c := range side {
			b.AddNode(float64(c*10), float64(r*10))
		}
	}
	for r := range side {
		for c := range side {
			u := uint32(r*side + c)
			if c+1 < side {
				b.AddLink(u, u+1)
			}
			if r+1 < side {
				b.AddLink(u, u+uint32(side))
			}
		}
	}
	return b.Build()
}

func TestFindCancelled(t *testing.T) {
	g := gridGraph(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Corner to corner, every strategy pops more than checkEvery nodes.
	for kind, s := range allStrategies(t, g) {
		t.Run(string(kind), func(t *testing.T) {
			_, err := s.Find(ctx, 0, g.NumNodes-1)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestOptimalStrategiesAgree(t *testing.T) {
	g := randomGraph(t, 42, 400, 4)
	strategies := allStrategies(t, g)
	oracle := strategies[KindDijkstra]
	rng := rand.New(rand.NewSource(99))

	for q := 0; q < 150; q++ {
		from := uint32(rng.Intn(int(g.NumNodes)))
		to := uint32(rng.Intn(int(g.NumNodes)))
		t.Run(fmt.Sprintf("%d_to_%d", from, to), func(t *testing.T) {
			want, err := oracle.Find(context.Background(), from, to)
			require.NoError(t, err)
			wantLen := PathLength(g, want)

			for _, kind := range []Kind{KindNBA, KindAStar} {
				got, err := strategies[kind].Find(context.Background(), from, to)
				require.NoError(t, err)
				if len(want) == 0 {
					assert.Empty(t, got, kind)
					continue
				}
				assertValidPath(t, g, got, from, to)
				assert.InDelta(t, wantLen, PathLength(g, got), 1e-6, kind)
			}

			// Greedy finds some path whenever one exists, never a shorter one.
			got, err := strategies[KindGreedy].Find(context.Background(), from, to)
			require.NoError(t, err)
			if len(want) == 0 {
				assert.Empty(t, got)
				return
			}
			assertValidPath(t, g, got, from, to)
			assert.GreaterOrEqual(t, PathLength(g, got), wantLen-1e-6)
		})
	}
}

func TestStrategyReuseAcrossQueries(t *testing.T) {
	g := buildTestGraph(t)
	s, err := New(KindNBA, g, Options{})
	require.NoError(t, err)

	for range 3 {
		path, err := s.Find(context.Background(), 3, 2)
		require.NoError(t, err)
		assert.InDelta(t, 300, PathLength(g, path), 1e-9)
	}
}

func TestCustomDistance(t *testing.T) {
	g := buildTestGraph(t)
	// Make the top row expensive so the bottom row wins.
	dist := func(a, b uint32) float64 {
		d := g.Dist(a, b)
		if g.Y[a] == 0 && g.Y[b] == 0 {
			return d * 10
		}
		return d
	}

	s, err := New(KindDijkstra, g, Options{Distance: dist})
	require.NoError(t, err)
	path, err := s.Find(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 3, 4, 5, 2}, path)
}

func TestRegistry(t *testing.T) {
	g := buildTestGraph(t)
	r := NewRegistry(g, Options{})
	assert.Same(t, g, r.Graph())

	for _, k := range Kinds() {
		s, err := r.Get(k)
		require.NoError(t, err)
		path, err := s.Find(context.Background(), 6, 0)
		require.NoError(t, err)
		assert.Empty(t, path, k)
	}

	_, err := r.Get("bogus")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	assert.True(t, r.SameComponent(0, 5))
	assert.False(t, r.SameComponent(0, 6))
	assert.False(t, r.SameComponent(0, 99))
}

func TestPathLengthAndPoints(t *testing.T) {
	g := buildTestGraph(t)
	assert.Zero(t, PathLength(g, nil))
	assert.Zero(t, PathLength(g, []uint32{3}))
	assert.InDelta(t, 200, PathLength(g, []uint32{0, 1, 2}), 1e-9)

	pts := PathPoints(g, []uint32{0, 4})
	require.Len(t, pts, 2)
	assert.Equal(t, 100.0, pts[1][0])
	assert.Equal(t, 100.0, pts[1][1])
}

func TestMinHeap(t *testing.T) {
	var h MinHeap
	assert.True(t, math.IsInf(h.Peek(), 1))

	for i, p := range []float64{5, 1, 4, 2, 3} {
		h.Push(uint32(i), p)
	}
	assert.Equal(t, 1.0, h.Peek())

	var got []float64
	for h.Len() > 0 {
		got = append(got, h.Pop().Priority)
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, got)
}

func BenchmarkStrategies(b *testing.B) {
	g := gridGraph(b, 100)
	from, to := uint32(0), g.NumNodes-1
	for kind, s := range allStrategies(b, g) {
		b.Run(string(kind), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				s.Find(context.Background(), from, to)
			}
		})
	}
}

package routing

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/azybler/routeviz/pkg/graph"
)

const noNode = math.MaxUint32

// checkEvery is how many heap pops separate two context checks.
const checkEvery = 100

// Search directions. Unidirectional searches only use fwd.
const (
	fwd = 0
	bwd = 1
)

// searchState holds per-query labels for up to two search directions.
type searchState struct {
	G       [2][]float64
	Pred    [2][]uint32
	Closed  []bool
	Touched []uint32 // nodes touched during this query (for fast reset)
	Open    [2]MinHeap

	seen []bool
}

func newSearchState(n uint32) *searchState {
	st := &searchState{
		Closed:  make([]bool, n),
		Touched: make([]uint32, 0, 1024),
		seen:    make([]bool, n),
	}
	for dir := range 2 {
		st.G[dir] = make([]float64, n)
		st.Pred[dir] = make([]uint32, n)
		for i := range st.G[dir] {
			st.G[dir][i] = math.Inf(1)
			st.Pred[dir][i] = noNode
		}
		st.Open[dir] = MinHeap{items: make([]PQItem, 0, 256)}
	}
	return st
}

// Reset clears only the touched entries for fast reuse.
func (st *searchState) Reset() {
	for _, u := range st.Touched {
		for dir := range 2 {
			st.G[dir][u] = math.Inf(1)
			st.Pred[dir][u] = noNode
		}
		st.Closed[u] = false
		st.seen[u] = false
	}
	st.Touched = st.Touched[:0]
	st.Open[fwd].Reset()
	st.Open[bwd].Reset()
}

// label sets the tentative distance and predecessor of u in direction dir.
func (st *searchState) label(dir int, u uint32, g float64, pred uint32) {
	if !st.seen[u] {
		st.seen[u] = true
		st.Touched = append(st.Touched, u)
	}
	st.G[dir][u] = g
	st.Pred[dir][u] = pred
}

// close marks u settled. Closing a node twice is reported as false.
func (st *searchState) close(u uint32) bool {
	if st.Closed[u] {
		return false
	}
	if !st.seen[u] {
		st.seen[u] = true
		st.Touched = append(st.Touched, u)
	}
	st.Closed[u] = true
	return true
}

// path walks forward predecessors back from meet, then backward
// predecessors on to the target.
func (st *searchState) path(meet uint32) []uint32 {
	var head []uint32
	for u := meet; u != noNode; u = st.Pred[fwd][u] {
		head = append(head, u)
	}
	for i, j := 0, len(head)-1; i < j; i, j = i+1, j-1 {
		head[i], head[j] = head[j], head[i]
	}
	for u := st.Pred[bwd][meet]; u != noNode; u = st.Pred[bwd][u] {
		head = append(head, u)
	}
	return head
}

// search is the shared frame of every strategy: id validation, the trivial
// from == to case, and a reusable searchState guarded by a mutex.
type search struct {
	g    *graph.Graph
	opts Options

	mu    sync.Mutex
	state *searchState
}

func (s *search) run(ctx context.Context, from, to uint32, body func(st *searchState) ([]uint32, error)) ([]uint32, error) {
	if from >= s.g.NumNodes {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, from)
	}
	if to >= s.g.NumNodes {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, to)
	}
	if from == to {
		return []uint32{from}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		s.state = newSearchState(s.g.NumNodes)
	}
	defer s.state.Reset()

	return body(s.state)
}

// polled returns ctx.Err() every checkEvery iterations.
func polled(ctx context.Context, iter int) error {
	if iter%checkEvery == 0 {
		return ctx.Err()
	}
	return nil
}

// Package spatial answers nearest-point queries over graph node coordinates.
package spatial

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/tidwall/rtree"
)

var (
	// ErrIndexNotReady is returned by queries issued before Build completes.
	ErrIndexNotReady = errors.New("spatial index not ready")
	// ErrNoNodesInGraph is returned when no point can be found near the query.
	ErrNoNodesInGraph = errors.New("no nodes in graph")
)

// progressEvery is how many inserted points separate two progress reports.
const progressEvery = 500

// ProgressFunc receives build progress as (points inserted, total points).
type ProgressFunc func(done, total int)

// Index is an R-tree over a flat coordinate array [x0, y0, x1, y1, ...].
// Entry payloads are flat indices; flat index i belongs to node i/2.
type Index struct {
	points []float64

	mu       sync.RWMutex
	tree     *rtree.RTreeG[uint32]
	ready    bool
	building chan struct{} // closed when the running build ends
}

// NewIndex wraps points without indexing them. Call Build before querying.
func NewIndex(points []float64) *Index {
	return &Index{points: points}
}

// Len returns the number of indexed points.
func (ix *Index) Len() int {
	return len(ix.points) / 2
}

// Ready reports whether Build has completed.
func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.ready
}

// Build inserts every point into a fresh R-tree and marks the index ready.
// If ctx is cancelled the index stays not ready. Building an index that is
// already ready is a no-op.
//
// Concurrent callers share one build: only the caller running it receives
// progress, the others wait for it. If the running build is cancelled, a
// waiter whose ctx is still live takes over.
func (ix *Index) Build(ctx context.Context, progress ProgressFunc) error {
	for {
		ix.mu.Lock()
		if ix.ready {
			ix.mu.Unlock()
			return nil
		}
		if running := ix.building; running != nil {
			ix.mu.Unlock()
			select {
			case <-running:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		done := make(chan struct{})
		ix.building = done
		ix.mu.Unlock()

		err := ix.build(ctx, progress)

		ix.mu.Lock()
		ix.building = nil
		ix.mu.Unlock()
		close(done)
		return err
	}
}

func (ix *Index) build(ctx context.Context, progress ProgressFunc) error {
	total := ix.Len()
	tr := &rtree.RTreeG[uint32]{}
	for n := 0; n < total; n++ {
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if progress != nil && n > 0 {
				progress(n, total)
			}
		}
		p := [2]float64{ix.points[2*n], ix.points[2*n+1]}
		tr.Insert(p, p, uint32(2*n))
	}
	if progress != nil {
		progress(total, total)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tree = tr
	ix.ready = true
	return nil
}

// Query returns the ids of all nodes within radius of (x, y), in no
// particular order.
func (ix *Index) Query(x, y, radius float64) ([]uint32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.ready {
		return nil, ErrIndexNotReady
	}

	var ids []uint32
	ix.search(x, y, radius, func(node uint32, _ float64) {
		ids = append(ids, node)
	})
	return ids, nil
}

// search visits every node within radius of (x, y). Callers hold mu.
func (ix *Index) search(x, y, radius float64, visit func(node uint32, dist float64)) {
	lo := [2]float64{x - radius, y - radius}
	hi := [2]float64{x + radius, y + radius}
	ix.tree.Search(lo, hi, func(min, _ [2]float64, flat uint32) bool {
		d := math.Hypot(min[0]-x, min[1]-y)
		if d <= radius {
			visit(flat/2, d)
		}
		return true
	})
}

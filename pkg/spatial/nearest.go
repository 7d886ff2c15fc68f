package spatial

import "math"

// NearestOptions bounds the expanding-radius nearest search.
type NearestOptions struct {
	// InitialRadius is the first search radius in graph units.
	InitialRadius float64
	// MaxDoublings caps how many times the radius is doubled on a miss.
	MaxDoublings int
}

// DefaultNearestOptions returns the options used by FindNearestPoint.
func DefaultNearestOptions() NearestOptions {
	return NearestOptions{
		InitialRadius: 2000,
		MaxDoublings:  32,
	}
}

// FindNearestPoint returns the node closest to (x, y) using the default
// options.
func (ix *Index) FindNearestPoint(x, y float64) (uint32, error) {
	return ix.FindNearestPointWith(x, y, DefaultNearestOptions())
}

// FindNearestPointWith searches a circle around (x, y), doubling the radius
// until a node is found or the doubling budget runs out. Among nodes in the
// first non-empty circle the Euclidean closest wins; ties go to the lower id.
func (ix *Index) FindNearestPointWith(x, y float64, opts NearestOptions) (uint32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.ready {
		return 0, ErrIndexNotReady
	}
	if ix.Len() == 0 {
		return 0, ErrNoNodesInGraph
	}

	radius := opts.InitialRadius
	if radius <= 0 {
		radius = DefaultNearestOptions().InitialRadius
	}

	for i := 0; i <= opts.MaxDoublings; i++ {
		best := uint32(math.MaxUint32)
		bestDist := math.Inf(1)
		ix.search(x, y, radius, func(node uint32, d float64) {
			if d < bestDist || (d == bestDist && node < best) {
				best, bestDist = node, d
			}
		})
		if best != math.MaxUint32 {
			return best, nil
		}
		radius *= 2
	}
	return 0, ErrNoNodesInGraph
}

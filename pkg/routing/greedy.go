package routing

import (
	"context"
	"math"
)

// greedy is best-first search ordered by the heuristic alone. It is fast
// and usually close, but the returned path is not guaranteed to be
// shortest.
type greedy struct {
	search
}

func (s *greedy) Find(ctx context.Context, from, to uint32) ([]uint32, error) {
	return s.run(ctx, from, to, func(st *searchState) ([]uint32, error) {
		g, dist, h := s.g, s.opts.Distance, s.opts.Heuristic

		st.label(fwd, from, 0, noNode)
		st.Open[fwd].Push(from, h(from, to))

		for iter := 1; st.Open[fwd].Len() > 0; iter++ {
			if err := polled(ctx, iter); err != nil {
				return nil, err
			}

			u := st.Open[fwd].Pop().Node
			if !st.close(u) {
				continue
			}
			if u == to {
				return st.path(to), nil
			}

			// First discovery fixes the predecessor.
			start, end := g.EdgesFrom(u)
			for e := start; e < end; e++ {
				v := g.Head[e]
				if !math.IsInf(st.G[fwd][v], 1) {
					continue
				}
				st.label(fwd, v, st.G[fwd][u]+dist(u, v), u)
				st.Open[fwd].Push(v, h(v, to))
			}
		}
		return []uint32{}, nil
	})
}

package routing

import (
	"context"
	"math"
)

// nba is NBA* (New Bidirectional A*, Pijls and Post): two A* searches, one
// from each end, sharing a closed set. The search alternates on the smaller
// open set and prunes nodes that cannot improve on the best meeting cost
// found so far. Optimal under a consistent heuristic.
type nba struct {
	search
}

func (s *nba) Find(ctx context.Context, from, to uint32) ([]uint32, error) {
	return s.run(ctx, from, to, func(st *searchState) ([]uint32, error) {
		g, dist, h := s.g, s.opts.Distance, s.opts.Heuristic

		// target of each direction, used by the heuristic
		goal := [2]uint32{to, from}

		best := math.Inf(1) // L: cost of the best meeting so far
		meet := uint32(noNode)

		// F[dir] is the smallest f in the open set of dir.
		var F [2]float64
		F[fwd] = h(from, to)
		F[bwd] = h(to, from)

		st.label(fwd, from, 0, noNode)
		st.Open[fwd].Push(from, F[fwd])
		st.label(bwd, to, 0, noNode)
		st.Open[bwd].Push(to, F[bwd])

		expand := func(dir int) {
			other := 1 - dir
			item := st.Open[dir].Pop()
			u := item.Node
			if st.Closed[u] {
				return
			}
			st.close(u)

			gu := st.G[dir][u]
			// Prune: u cannot lie on a path cheaper than best.
			if gu+h(u, goal[dir]) < best && gu+F[other]-h(u, goal[other]) < best {
				start, end := g.EdgesFrom(u)
				for e := start; e < end; e++ {
					v := g.Head[e]
					if st.Closed[v] {
						continue
					}
					if ng := gu + dist(u, v); ng < st.G[dir][v] {
						st.label(dir, v, ng, u)
						st.Open[dir].Push(v, ng+h(v, goal[dir]))
					}
					if cand := st.G[dir][v] + st.G[other][v]; cand < best {
						best, meet = cand, v
					}
				}
			}

			if st.Open[dir].Len() > 0 {
				F[dir] = st.Open[dir].Peek()
			}
		}

		for iter := 1; st.Open[fwd].Len() > 0 && st.Open[bwd].Len() > 0; iter++ {
			if err := polled(ctx, iter); err != nil {
				return nil, err
			}
			if st.Open[fwd].Len() < st.Open[bwd].Len() {
				expand(fwd)
			} else {
				expand(bwd)
			}
		}

		if meet == noNode {
			return []uint32{}, nil
		}
		return st.path(meet), nil
	})
}

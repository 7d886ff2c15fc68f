package routing

import (
	"context"
)

// astar is unidirectional A*. With informed unset the heuristic is zero and
// the search degenerates to Dijkstra.
type astar struct {
	search
	informed bool
}

func (a *astar) Find(ctx context.Context, from, to uint32) ([]uint32, error) {
	return a.run(ctx, from, to, func(st *searchState) ([]uint32, error) {
		g, dist := a.g, a.opts.Distance
		h := func(u uint32) float64 {
			if !a.informed {
				return 0
			}
			return a.opts.Heuristic(u, to)
		}

		st.label(fwd, from, 0, noNode)
		st.Open[fwd].Push(from, h(from))

		for iter := 1; st.Open[fwd].Len() > 0; iter++ {
			if err := polled(ctx, iter); err != nil {
				return nil, err
			}

			u := st.Open[fwd].Pop().Node
			if !st.close(u) {
				continue // stale entry
			}
			if u == to {
				return st.path(to), nil
			}

			gu := st.G[fwd][u]
			start, end := g.EdgesFrom(u)
			for e := start; e < end; e++ {
				v := g.Head[e]
				if st.Closed[v] {
					continue
				}
				if ng := gu + dist(u, v); ng < st.G[fwd][v] {
					st.label(fwd, v, ng, u)
					st.Open[fwd].Push(v, ng+h(v))
				}
			}
		}
		return []uint32{}, nil
	})
}

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchTotal counts route recomputations by finder and outcome.
	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routeviz_search_total",
		Help: "Route searches by finder and result",
	}, []string{"finder", "result"}) // result: found, no_path, error

	// searchDuration tracks pathfinding latency.
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routeviz_search_duration_seconds",
		Help:    "Pathfinding duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	}, []string{"finder"})

	// graphLoadTotal counts graph loads by outcome.
	graphLoadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routeviz_graph_load_total",
		Help: "Graph loads by result",
	}, []string{"result"}) // result: ok, error, stale

	// activeSessions tracks sessions held by managers.
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "routeviz_active_sessions",
		Help: "Number of live sessions",
	})
)

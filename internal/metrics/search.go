package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and verification Prometheus metrics.
var (
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrio",
			Name:      "backend_requests_total",
			Help:      "Total number of backend search requests",
		},
		[]string{"backend", "status"},
	)

	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrio",
			Name:      "backend_request_duration_seconds",
			Help:      "Backend search request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	BackendCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrio",
			Name:      "backend_candidates_total",
			Help:      "Total candidates returned by backends",
		},
		[]string{"backend"},
	)

	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrio",
			Name:      "verification_probes_total",
			Help:      "Total verification probes by outcome",
		},
		[]string{"backend", "outcome"},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrio",
			Name:      "search_cache_total",
			Help:      "Search result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(BackendRequestsTotal)
	prometheus.MustRegister(BackendRequestDuration)
	prometheus.MustRegister(BackendCandidatesTotal)
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(SearchCacheTotal)
	searchMetricsRegistered = true
}

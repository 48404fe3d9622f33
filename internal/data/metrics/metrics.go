package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks query executions by terminal outcome
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_queries_total",
			Help: "Total number of query executions",
		},
		[]string{"outcome"},
	)

	// MutationsTotal tracks mutation executions by terminal outcome
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_mutations_total",
			Help: "Total number of mutation executions",
		},
		[]string{"outcome"},
	)

	// CacheLookups tracks cache lookups by freshness result
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"result"},
	)

	// RetriesTotal tracks scheduled retries by error kind
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_retries_total",
			Help: "Total number of scheduled retries",
		},
		[]string{"kind"},
	)

	// RateLimitBlocks tracks operations that consulted a blocked gate
	RateLimitBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_rate_limit_blocked_total",
			Help: "Total number of operations held back by the rate-limit gate",
		},
	)

	// TransportLatency tracks backend call latency per operation type
	TransportLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_transport_latency_seconds",
			Help:    "Backend call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// InvalidationsTotal tracks cache entries evicted by mutations
	InvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_invalidations_total",
			Help: "Total number of cache entries evicted after mutations",
		},
	)
)

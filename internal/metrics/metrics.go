package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArchiveCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotgarden_archive_calls_total",
			Help: "Total weather archive API calls",
		},
		[]string{"status"},
	)

	ArchiveCallLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plotgarden_archive_call_latency_seconds",
			Help:    "Weather archive API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotgarden_weather_refreshes_total",
			Help: "Total weather refresh invocations by outcome",
		},
		[]string{"outcome"},
	)

	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotgarden_ai_calls_total",
			Help: "Total AI gateway calls",
		},
		[]string{"op", "status"},
	)

	SnapshotsRendered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plotgarden_snapshots_rendered_total",
			Help: "Total plot snapshot images rendered (cache misses)",
		},
	)
)

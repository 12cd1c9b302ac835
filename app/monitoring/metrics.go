package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ContributionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purse_contributions_recorded_total",
			Help: "Total number of purse contributions written to the ledger",
		},
	)

	RefundsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purse_refunds_recorded_total",
			Help: "Total number of purse refunds written to the ledger",
		},
	)

	SnapshotRecomputes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purse_snapshot_recomputes_total",
			Help: "Total number of full snapshot recomputes",
		},
	)

	SnapshotDriftRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purse_snapshot_drift_repaired_total",
			Help: "Snapshot rows whose cached totals drifted from the ledger and were repaired",
		},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "square_request_duration_seconds",
			Help:    "Duration of Square API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)
)

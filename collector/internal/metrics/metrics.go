package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Batch ingestion metrics
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_collector_batches_total",
			Help: "Total number of batches received, by outcome",
		},
		[]string{"status"},
	)

	RecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logship_collector_records_total",
			Help: "Total number of log records accepted",
		},
	)

	UnusualRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_collector_unusual_records_total",
			Help: "Total number of records classified unusual",
		},
		[]string{"severity"},
	)

	RequestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logship_collector_request_bytes_total",
			Help: "Total bytes of request bodies received",
		},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logship_collector_storage_duration_seconds",
			Help:    "Duration of object store writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_collector_storage_errors_total",
			Help: "Total number of object store write errors",
		},
		[]string{"backend"},
	)

	IndexErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logship_collector_index_errors_total",
			Help: "Total number of records that failed to index",
		},
	)

	DLQWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_collector_dlq_writes_total",
			Help: "Total number of batches written to the dead-letter queue",
		},
		[]string{"status"},
	)

	// PartitionCollisions counts batches whose key was already recorded.
	PartitionCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logship_collector_partition_collisions_total",
			Help: "Total number of batches that reused an existing partition key",
		},
	)

	// Alert metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_collector_alerts_total",
			Help: "Total number of alerts sent, by outcome",
		},
		[]string{"status"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_collector_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"device"},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logship_collector_auth_failures_total",
			Help: "Total number of rejected device tokens",
		},
	)
)

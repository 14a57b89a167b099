package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed tracks items handed to a maintenance operation
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "librarian_items_processed_total",
			Help: "Total number of items processed by maintenance tasks",
		},
		[]string{"task"},
	)

	// ItemsFailed tracks items whose operation reported failure
	ItemsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "librarian_items_failed_total",
			Help: "Total number of items that failed processing",
		},
		[]string{"task"},
	)

	// ItemsSkipped tracks items run without recovery because of a prior failure
	ItemsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "librarian_items_skipped_total",
			Help: "Total number of items processed without recovery",
		},
		[]string{"task"},
	)

	// RunDuration tracks wall time of a batch run
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "librarian_run_duration_seconds",
			Help:    "Batch run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"task", "status"},
	)

	// RunProgress tracks progress of the current run (0-100)
	RunProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "librarian_run_progress_percent",
			Help: "Progress of the current batch run",
		},
		[]string{"task"},
	)

	// LedgerSize tracks the number of keys in the failure ledger
	LedgerSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "librarian_ledger_size",
			Help: "Number of known-bad items in the failure ledger",
		},
		[]string{"task"},
	)

	// LedgerWriteErrors tracks failed ledger persists
	LedgerWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "librarian_ledger_write_errors_total",
			Help: "Total number of failed ledger writes",
		},
		[]string{"task"},
	)

	// GatewayCalls tracks external service calls per gateway and status
	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "librarian_gateway_calls_total",
			Help: "Total number of external service calls",
		},
		[]string{"gateway", "status"},
	)

	// GatewayLatency tracks external service call latency
	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "librarian_gateway_latency_seconds",
			Help:    "External service call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"gateway"},
	)

	// EndpointSelections tracks endpoint selection outcomes
	EndpointSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "librarian_endpoint_selections_total",
			Help: "Endpoint selection attempts by outcome",
		},
		[]string{"gateway", "outcome"},
	)

	// ProviderErrors tracks classified provider error codes
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "librarian_provider_errors_total",
			Help: "Provider error codes by category",
		},
		[]string{"category"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "librarian_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)

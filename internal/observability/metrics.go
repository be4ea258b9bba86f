// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Discovery metrics
	TransfersDiscovered *prometheus.CounterVec
	UnitsSkipped        *prometheus.CounterVec
	BreakerTrips        prometheus.Counter

	// Dedup metrics
	DuplicatesDropped prometheus.Counter

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Streaming metrics
	StreamFlushes   prometheus.Counter
	StreamBatchSize prometheus.Histogram

	// Upstream latency metrics
	RPCCallLatency    *prometheus.HistogramVec
	SearchCallLatency prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_transfer_lab"
	}

	return &Metrics{
		TransfersDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "transfers_discovered_total",
			Help:      "Total number of transfer records discovered by strategy",
		}, []string{"strategy"}),
		UnitsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "units_skipped_total",
			Help:      "Total number of fetch units skipped after upstream failure",
		}, []string{"strategy", "unit"}),
		BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "breaker_trips_total",
			Help:      "Total number of indexed-search circuit breaker trips",
		}),

		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "duplicates_dropped_total",
			Help:      "Total number of exact-duplicate transfers dropped on merge",
		}),

		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "runs_total",
			Help:      "Total number of reconstruction queries by mode and status",
		}, []string{"mode", "status"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Reconstruction query duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"mode"}),

		StreamFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "flushes_total",
			Help:      "Total number of batch flushes delivered to stream consumers",
		}),
		StreamBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "batch_size",
			Help:      "Number of transfers per flushed batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		SearchCallLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "call_latency_seconds",
			Help:      "Transfer-index search call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransferDiscovered increments the discovered counter for a strategy.
func RecordTransferDiscovered(strategy string) {
	DefaultMetrics.TransfersDiscovered.WithLabelValues(strategy).Inc()
}

// RecordUnitSkipped records a skipped fetch unit after an upstream failure.
func RecordUnitSkipped(strategy, unit string) {
	DefaultMetrics.UnitsSkipped.WithLabelValues(strategy, unit).Inc()
}

// RecordBreakerTrip increments the circuit breaker trip counter.
func RecordBreakerTrip() {
	DefaultMetrics.BreakerTrips.Inc()
}

// RecordDuplicateDropped increments the dedup drop counter.
func RecordDuplicateDropped() {
	DefaultMetrics.DuplicatesDropped.Inc()
}

// RecordQuery records one reconstruction query run.
func RecordQuery(mode, status string, durationSeconds float64) {
	DefaultMetrics.QueriesTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.QueryDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordStreamFlush records one delivered batch.
func RecordStreamFlush(batchSize int) {
	DefaultMetrics.StreamFlushes.Inc()
	DefaultMetrics.StreamBatchSize.Observe(float64(batchSize))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordSearchLatency records transfer-index search call latency.
func RecordSearchLatency(seconds float64) {
	DefaultMetrics.SearchCallLatency.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

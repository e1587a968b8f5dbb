package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP API
// activity per module and route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sbtlend",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sbtlend",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sbtlend",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sbtlend",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks state transitions applied by the lending service.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	pool       *prometheus.GaugeVec
	minted     prometheus.Gauge
	sinkErrors *prometheus.CounterVec
	backlog    *prometheus.GaugeVec
}

// Ledger returns the singleton metrics registry for ledger operations.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sbtlend",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by module, operation and outcome.",
			}, []string{"module", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sbtlend",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			pool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "sbtlend",
				Subsystem: "pool",
				Name:      "total",
				Help:      "Committed pool totals in base units.",
			}, []string{"kind"}),
			minted: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sbtlend",
				Subsystem: "reputation",
				Name:      "minted_total",
				Help:      "Number of soulbound reputation records minted.",
			}),
			sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sbtlend",
				Subsystem: "events",
				Name:      "sink_failures_total",
				Help:      "Committed events an event sink failed to accept, segmented by sink and reason.",
			}, []string{"sink", "reason"}),
			backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "sbtlend",
				Subsystem: "events",
				Name:      "sink_backlog",
				Help:      "Committed events waiting to be redelivered to a sink.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.pool,
			ledgerRegistry.minted,
			ledgerRegistry.sinkErrors,
			ledgerRegistry.backlog,
		)
	})
	return ledgerRegistry
}

// Observe records a ledger operation. Outcome is "success" or the error kind
// the operation was rejected with.
func (m *LedgerMetrics) Observe(module, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(module, op, outcome).Inc()
	m.latency.WithLabelValues(module, op).Observe(duration.Seconds())
}

// RecordPool publishes the committed pool totals.
func (m *LedgerMetrics) RecordPool(deposits, borrowed, reserves uint64) {
	if m == nil {
		return
	}
	m.pool.WithLabelValues("deposits").Set(float64(deposits))
	m.pool.WithLabelValues("borrowed").Set(float64(borrowed))
	m.pool.WithLabelValues("reserves").Set(float64(reserves))
}

// RecordMinted publishes the registry mint counter.
func (m *LedgerMetrics) RecordMinted(total uint64) {
	if m == nil {
		return
	}
	m.minted.Set(float64(total))
}

// RecordSinkFailure counts events a sink did not accept. Reason is "publish"
// for a failed delivery that will be retried and "dropped" for events evicted
// from the redelivery backlog.
func (m *LedgerMetrics) RecordSinkFailure(sink, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sinkErrors.WithLabelValues(sink, reason).Add(float64(count))
}

// RecordSinkBacklog publishes the number of events awaiting redelivery.
func (m *LedgerMetrics) RecordSinkBacklog(sink string, pending int) {
	if m == nil {
		return
	}
	m.backlog.WithLabelValues(sink).Set(float64(pending))
}

// Package metrics exposes Prometheus instrumentation shared by the operator
// and provider services, grounded on the teacher facilitator service's
// metrics package.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters/histograms/gauges instrumenting the call
// dispatch pipeline (C8), the payment engine (C6) and the provider verifier
// (C9).
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	paymentsTotal   *prometheus.CounterVec
	verifyTotal     *prometheus.CounterVec
	activeCalls     prometheus.Gauge
	ledgerRows      prometheus.Gauge
}

// New creates all metrics and registers them on a registry owned by the
// returned Metrics, so several instances can coexist in one process.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		paymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total number of payment attempts by outcome.",
			},
			[]string{"outcome"},
		),
		verifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verify_total",
				Help:      "Total number of provider-side payment verifications by outcome.",
			},
			[]string{"outcome"},
		),
		activeCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_calls",
				Help:      "Number of calls currently in flight through the dispatcher.",
			},
		),
		ledgerRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ledger_rows",
				Help:      "Number of rows in the USDC call ledger.",
			},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.paymentsTotal,
		m.verifyTotal,
		m.activeCalls,
		m.ledgerRows,
	)

	return m
}

// GinMiddleware records request count and latency for every route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start).Seconds()

		status := strconv.Itoa(c.Writer.Status())
		m.requestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), status).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(elapsed)
	}
}

// RecordPayment increments the payment outcome counter.
func (m *Metrics) RecordPayment(outcome string) {
	m.paymentsTotal.WithLabelValues(outcome).Inc()
}

// RecordVerify increments the provider verification outcome counter.
func (m *Metrics) RecordVerify(outcome string) {
	m.verifyTotal.WithLabelValues(outcome).Inc()
}

// IncActiveCalls / DecActiveCalls track in-flight dispatcher calls.
func (m *Metrics) IncActiveCalls() { m.activeCalls.Inc() }
func (m *Metrics) DecActiveCalls() { m.activeCalls.Dec() }

// SetLedgerRows records the current ledger row count.
func (m *Metrics) SetLedgerRows(n int) { m.ledgerRows.Set(float64(n)) }

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Package metrics exposes the Prometheus counters and histograms of the
// marketplace backend.
//
// A nil *Collector is valid and records nothing, so engines can be built
// without a registry in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Callback outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Collector holds the marketplace metrics.
type Collector struct {
	jobTransitions   *prometheus.CounterVec
	paymentCallbacks *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	reconcileRepairs *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them on reg.
// When reg also implements prometheus.Gatherer it backs Handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dopi_job_transitions_total",
			Help: "Job status transitions applied, by target status",
		}, []string{"to"}),
		paymentCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dopi_payment_callbacks_total",
			Help: "Payment callbacks handled, by callback and outcome",
		}, []string{"callback", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dopi_gateway_request_duration_seconds",
			Help:    "Latency of outbound payment gateway and chain requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		reconcileRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dopi_reconcile_repairs_total",
			Help: "Repairs applied by the reconciliation sweep, by kind",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dopi_http_requests_total",
			Help: "HTTP requests served, by method and status code",
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		c.jobTransitions,
		c.paymentCallbacks,
		c.gatewayLatency,
		c.reconcileRepairs,
		c.httpRequests,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

// RecordJobTransition counts a job moving to status to.
func (c *Collector) RecordJobTransition(to string) {
	if c == nil {
		return
	}
	c.jobTransitions.WithLabelValues(to).Inc()
}

// RecordCallback counts a payment callback outcome.
func (c *Collector) RecordCallback(callback string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	c.paymentCallbacks.WithLabelValues(callback, outcome).Inc()
}

// ObserveGateway records the latency of one outbound request.
func (c *Collector) ObserveGateway(endpoint string, started time.Time) {
	if c == nil {
		return
	}
	c.gatewayLatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

// RecordRepair counts a reconciliation repair.
func (c *Collector) RecordRepair(kind string) {
	if c == nil {
		return
	}
	c.reconcileRepairs.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest counts a served HTTP request.
func (c *Collector) RecordHTTPRequest(method string, status int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns the scrape handler for the registry the collector was built on.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

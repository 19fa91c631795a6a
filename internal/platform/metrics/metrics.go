// Package metrics holds the Prometheus collectors exposed on the admin listener.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	AdmissionOutcomes *prometheus.CounterVec
	Rotations         *prometheus.CounterVec
	RecordsSwept      prometheus.Counter
	AuditMirrorErrors prometheus.Counter
}

// New creates the metrics on a private registry, together with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsgate_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsgate_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AdmissionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsgate_admission_decisions_total",
			Help: "Admission decisions by endpoint class and outcome (allowed, denied, error).",
		}, []string{"class", "outcome"}),
		Rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsgate_refresh_rotations_total",
			Help: "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
		RecordsSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "opsgate_refresh_records_swept_total",
			Help: "Expired refresh token records deleted by the sweeper.",
		}),
		AuditMirrorErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opsgate_audit_mirror_errors_total",
			Help: "Audit events that could not be mirrored to an external sink.",
		}),
	}
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveAdmission records one admission decision.
func (m *Metrics) ObserveAdmission(class, outcome string) {
	if m == nil {
		return
	}
	m.AdmissionOutcomes.WithLabelValues(class, outcome).Inc()
}

// ObserveRotation records one refresh rotation outcome.
func (m *Metrics) ObserveRotation(outcome string) {
	if m == nil {
		return
	}
	m.Rotations.WithLabelValues(outcome).Inc()
}

// AddSwept adds n swept records.
func (m *Metrics) AddSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsSwept.Add(float64(n))
}

// IncAuditMirrorError counts one audit event a sink rejected.
func (m *Metrics) IncAuditMirrorError() {
	if m == nil {
		return
	}
	m.AuditMirrorErrors.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

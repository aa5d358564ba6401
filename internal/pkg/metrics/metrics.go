// Package metrics holds the Prometheus collectors for attendance ingestion,
// reconciliation and device traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Ingested events by outcome: recorded, dropped, unknown_user, unauthorized, cooldown
	IngestOutcome *prometheus.CounterVec

	// Recorded events by direction
	RecordedDirection *prometheus.CounterVec

	IngestLatency prometheus.Histogram

	// Reconciliation runs by result: ok, failed, skipped
	ReconcileRuns *prometheus.CounterVec

	ReconcileConverted prometheus.Counter

	// Webhook deliveries by result: accepted, rejected_token, decode_error
	WebhookRequests *prometheus.CounterVec

	StreamReconnects prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		IngestOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_ingest_events_total",
			Help: "Device events processed by outcome",
		}, []string{"outcome"}),

		RecordedDirection: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_records_total",
			Help: "Attendance records written by inferred direction",
		}, []string{"event_type"}),

		IngestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_ingest_duration_seconds",
			Help:    "Duration of one event through the ingestion pipeline",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_reconcile_runs_total",
			Help: "End-of-day reconciliation runs by result",
		}, []string{"result"}),

		ReconcileConverted: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_reconcile_converted_total",
			Help: "Records flipped from check_in to check_out by reconciliation",
		}),

		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hikvision_webhook_requests_total",
			Help: "Webhook deliveries from the device by result",
		}, []string{"result"}),

		StreamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "hikvision_alert_stream_reconnects_total",
			Help: "Reconnect attempts of the device alert stream",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncIngestOutcome(outcome string) {
	if m != nil {
		m.IngestOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncRecorded(eventType string) {
	if m != nil {
		m.RecordedDirection.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) ObserveIngestLatency(d time.Duration) {
	if m != nil {
		m.IngestLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncReconcileRun(result string, converted int) {
	if m != nil {
		m.ReconcileRuns.WithLabelValues(result).Inc()
		m.ReconcileConverted.Add(float64(converted))
	}
}

func (m *Metrics) IncWebhook(result string) {
	if m != nil {
		m.WebhookRequests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncStreamReconnect() {
	if m != nil {
		m.StreamReconnects.Inc()
	}
}

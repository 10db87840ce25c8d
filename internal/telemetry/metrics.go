package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics on the default
// registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_requests_total",
				Help: "Total number of provider calls by operation, provider, and status",
			},
			[]string{"operation", "provider", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courier_request_duration_seconds",
				Help:    "Provider call duration in seconds by operation and provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "provider"},
		),
		ProviderErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_provider_errors_total",
				Help: "Total provider API errors by provider and operation",
			},
			[]string{"provider", "operation"},
		),
		WebhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_webhook_events_total",
				Help: "Webhook callbacks by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}
}

// RecordRequest records a provider call metric.
func (m *Metrics) RecordRequest(operation, provider, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, provider, status).Inc()
	m.RequestDuration.WithLabelValues(operation, provider).Observe(duration)
}

// RecordError records a provider error metric.
func (m *Metrics) RecordError(provider, operation string) {
	m.ProviderErrors.WithLabelValues(provider, operation).Inc()
}

// RecordWebhook records a webhook ingestion outcome.
func (m *Metrics) RecordWebhook(provider, outcome string) {
	m.WebhookEvents.WithLabelValues(provider, outcome).Inc()
}

// Package metrics implements the billing and access gate metrics with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements billing.Metrics and the gate decision recorder.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	webhookErrorsTotal        *prometheus.CounterVec
	statusTransitionsTotal    *prometheus.CounterVec
	mirrorWritesTotal         *prometheus.CounterVec
	apiCallsTotal             *prometheus.CounterVec
	apiCallDuration           *prometheus.HistogramVec
	gateDecisionsTotal        *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events reconciled, by outcome.",
		}, []string{"provider", "event_type", "outcome"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of webhook reconciliation in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_errors_total",
			Help:      "Total number of rejected or failed webhook deliveries.",
		}, []string{"provider", "error_type"}),

		statusTransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "status_transitions_total",
			Help:      "Total number of subscription status changes.",
		}, []string{"provider", "from_status", "to_status"}),

		mirrorWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "mirror_writes_total",
			Help:      "Total number of identity metadata mirror writes.",
		}, []string{"result"}),

		apiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "api_calls_total",
			Help:      "Total number of API calls to billing providers.",
		}, []string{"provider", "endpoint", "status"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of billing provider API calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),

		gateDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total number of access gate decisions.",
		}, []string{"route_class", "decision", "source"}),
	}
}

func (m *Metrics) RecordWebhookEvent(provider, eventType, outcome string) {
	m.webhookEventsTotal.WithLabelValues(provider, eventType, outcome).Inc()
}

func (m *Metrics) RecordWebhookError(provider, errorKind string) {
	m.webhookErrorsTotal.WithLabelValues(provider, errorKind).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(provider string, d time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) RecordStatusTransition(provider, from, to string) {
	m.statusTransitionsTotal.WithLabelValues(provider, from, to).Inc()
}

func (m *Metrics) RecordMirrorWrite(result string) {
	m.mirrorWritesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordProviderAPICall(provider, endpoint, status string, d time.Duration) {
	m.apiCallsTotal.WithLabelValues(provider, endpoint, status).Inc()
	m.apiCallDuration.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}

// RecordGateDecision counts allow/deny/redirect decisions and which store answered.
func (m *Metrics) RecordGateDecision(routeClass, decision, source string) {
	m.gateDecisionsTotal.WithLabelValues(routeClass, decision, source).Inc()
}

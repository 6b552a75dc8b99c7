package billing

import "time"

// Metrics records billing reconciliation metrics. The prometheus
// implementation lives in internal/pkg/metrics.
type Metrics interface {
	RecordWebhookEvent(provider, eventType, outcome string)
	RecordWebhookError(provider, errorKind string)
	RecordWebhookProcessingDuration(provider string, d time.Duration)
	RecordStatusTransition(provider, from, to string)
	RecordMirrorWrite(result string)
	RecordProviderAPICall(provider, endpoint, status string, d time.Duration)
}

// NoopMetrics is used when no metrics backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) RecordWebhookEvent(provider, eventType, outcome string)                   {}
func (NoopMetrics) RecordWebhookError(provider, errorKind string)                            {}
func (NoopMetrics) RecordWebhookProcessingDuration(provider string, d time.Duration)         {}
func (NoopMetrics) RecordStatusTransition(provider, from, to string)                         {}
func (NoopMetrics) RecordMirrorWrite(result string)                                          {}
func (NoopMetrics) RecordProviderAPICall(provider, endpoint, status string, d time.Duration) {}

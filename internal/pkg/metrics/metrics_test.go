package metrics

import (
	"testing"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ billing.Metrics = (*Metrics)(nil)

func TestMetrics_RecordWebhook(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.RecordWebhookEvent("dodo", "subscription.active", "applied")
	m.RecordWebhookEvent("dodo", "subscription.active", "applied")
	m.RecordWebhookEvent("dodo", "subscription.active", "duplicate")
	m.RecordWebhookError("lemonsqueezy", "auth_failed")
	m.RecordWebhookProcessingDuration("dodo", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("dodo", "subscription.active", "applied")); got != 2 {
		t.Fatalf("applied events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.webhookErrorsTotal.WithLabelValues("lemonsqueezy", "auth_failed")); got != 1 {
		t.Fatalf("errors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.webhookProcessingDuration); n != 1 {
		t.Fatalf("histogram series = %d, want 1", n)
	}
}

func TestMetrics_RecordTransitionsAndGate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.RecordStatusTransition("dodo", "active", "cancelled")
	m.RecordMirrorWrite("error")
	m.RecordProviderAPICall("phonepe", "status", "200", 100*time.Millisecond)
	m.RecordGateDecision("protected", "deny", "mirror")

	if got := testutil.ToFloat64(m.statusTransitionsTotal.WithLabelValues("dodo", "active", "cancelled")); got != 1 {
		t.Fatalf("transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.gateDecisionsTotal.WithLabelValues("protected", "deny", "mirror")); got != 1 {
		t.Fatalf("gate decisions = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected metrics to be recorded")
	}
}

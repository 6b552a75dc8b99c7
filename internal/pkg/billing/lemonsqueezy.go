package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var lemonSqueezyActions = map[string]Action{
	"subscription_created":         ActionActivate,
	"subscription_payment_success": ActionRenew,
	"subscription_resumed":         ActionActivate,
	"subscription_unpaused":        ActionActivate,
	"subscription_cancelled":       ActionCancel,
	"subscription_expired":         ActionExpire,
	"subscription_paused":          ActionHold,
	"subscription_payment_failed":  ActionFail,
}

// lemonSqueezyStatusActions resolves subscription_updated from the reported status.
var lemonSqueezyStatusActions = map[string]Action{
	"active":    ActionRenew,
	"on_trial":  ActionActivate,
	"paused":    ActionHold,
	"past_due":  ActionHold,
	"unpaid":    ActionFail,
	"cancelled": ActionCancel,
	"expired":   ActionExpire,
}

type lemonSqueezyWebhook struct {
	Meta struct {
		EventName  string     `json:"event_name"`
		CustomData customData `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		Type       string                 `json:"type"`
		ID         flexString             `json:"id"`
		Attributes lemonSqueezyAttributes `json:"attributes"`
	} `json:"data"`
	Included []struct {
		Type       string     `json:"type"`
		ID         flexString `json:"id"`
		Attributes struct {
			Email string `json:"email"`
		} `json:"attributes"`
	} `json:"included"`
}

type lemonSqueezyAttributes struct {
	UserEmail      string     `json:"user_email"`
	CustomerID     flexString `json:"customer_id"`
	OrderID        flexString `json:"order_id"`
	ProductID      flexString `json:"product_id"`
	VariantID      flexString `json:"variant_id"`
	SubscriptionID flexString `json:"subscription_id"`
	Status         string     `json:"status"`
	RenewsAt       string     `json:"renews_at"`
	EndsAt         string     `json:"ends_at"`
	TrialEndsAt    string     `json:"trial_ends_at"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
}

// LemonSqueezyNormalizer reads Lemon Squeezy deliveries (hex HMAC in X-Signature).
type LemonSqueezyNormalizer struct {
	ResolvePlan PlanResolver
}

func (LemonSqueezyNormalizer) Provider() Provider { return ProviderLemonSqueezy }

func (n LemonSqueezyNormalizer) Normalize(payload []byte, meta DeliveryMeta) (*SubscriptionEvent, error) {
	var body lemonSqueezyWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	eventType := strings.TrimSpace(firstNonEmpty(body.Meta.EventName, meta.EventName))
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedPayload)
	}

	attrs := body.Data.Attributes
	status := strings.ToLower(strings.TrimSpace(attrs.Status))

	action, ok := lemonSqueezyActions[eventType]
	if eventType == "subscription_updated" {
		action, ok = lemonSqueezyStatusActions[status]
	}
	if !ok {
		action = ActionIgnore
	}
	trialing := action == ActionActivate && status == "on_trial"

	// Subscription invoices reference their subscription through an attribute.
	subscriptionID := attrs.SubscriptionID.String()
	if subscriptionID == "" && body.Data.Type == "subscriptions" {
		subscriptionID = body.Data.ID.String()
	}

	var includedEmail string
	for _, inc := range body.Included {
		if inc.Type == "customers" && inc.Attributes.Email != "" {
			includedEmail = inc.Attributes.Email
			break
		}
	}

	// meta.webhook_id names the endpoint, not the delivery, so without an
	// external id the payload hash keys dedupe.
	ev := &SubscriptionEvent{
		Provider:       ProviderLemonSqueezy,
		EventID:        meta.EventID,
		EventType:      eventType,
		Action:         action,
		Email:          firstNonEmpty(attrs.UserEmail, body.Meta.CustomData.value("email"), includedEmail),
		UserID:         body.Meta.CustomData.userID(),
		SubscriptionID: subscriptionID,
		PaymentID:      attrs.OrderID.String(),
		ProductID:      firstNonEmpty(attrs.VariantID.String(), attrs.ProductID.String()),
		Trialing:       trialing,
		PeriodEnd:      lemonSqueezyPeriodEnd(action, trialing, attrs),
	}
	if n.ResolvePlan != nil && (attrs.VariantID != "" || attrs.ProductID != "") {
		ev.Plan = n.ResolvePlan(attrs.VariantID.String(), attrs.ProductID.String())
	}
	if ts := parseTime(firstNonEmpty(attrs.UpdatedAt, attrs.CreatedAt)); ts != nil {
		ev.OccurredAt = *ts
	} else {
		ev.OccurredAt = time.Now().UTC()
	}
	return finishEvent(ev, payload)
}

func lemonSqueezyPeriodEnd(action Action, trialing bool, attrs lemonSqueezyAttributes) *time.Time {
	switch {
	case trialing:
		return parseTime(firstNonEmpty(attrs.TrialEndsAt, attrs.RenewsAt))
	case isActivating(action):
		return parseTime(attrs.RenewsAt)
	default:
		return parseTime(attrs.EndsAt)
	}
}

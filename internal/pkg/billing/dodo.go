package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var dodoActions = map[string]Action{
	"payment.succeeded":         ActionActivate,
	"subscription.active":       ActionActivate,
	"subscription.renewed":      ActionRenew,
	"subscription.plan_changed": ActionRenew,
	"subscription.on_hold":      ActionHold,
	"subscription.cancelled":    ActionCancel,
	"subscription.failed":       ActionFail,
	"subscription.expired":      ActionExpire,
	"payment.failed":            ActionFail,
}

type dodoWebhook struct {
	Type      string   `json:"type"`
	Timestamp string   `json:"timestamp"`
	Data      dodoData `json:"data"`
}

type dodoData struct {
	SubscriptionID      flexString `json:"subscription_id"`
	PaymentID           flexString `json:"payment_id"`
	ProductID           flexString `json:"product_id"`
	Status              string     `json:"status"`
	NextBillingDate     string     `json:"next_billing_date"`
	PreviousBillingDate string     `json:"previous_billing_date"`
	Customer            struct {
		CustomerID flexString `json:"customer_id"`
		Email      string     `json:"email"`
	} `json:"customer"`
	Metadata    customData `json:"metadata"`
	ProductCart []struct {
		ProductID flexString `json:"product_id"`
	} `json:"product_cart"`
}

// DodoNormalizer reads Dodo Payments deliveries (Svix envelope).
type DodoNormalizer struct {
	ResolvePlan PlanResolver
}

func (DodoNormalizer) Provider() Provider { return ProviderDodo }

func (n DodoNormalizer) Normalize(payload []byte, meta DeliveryMeta) (*SubscriptionEvent, error) {
	var body dodoWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	eventType := strings.TrimSpace(firstNonEmpty(body.Type, meta.EventName))
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	action, ok := dodoActions[eventType]
	if !ok {
		action = ActionIgnore
	}

	data := body.Data
	productID := data.ProductID.String()
	if productID == "" && len(data.ProductCart) > 0 {
		productID = data.ProductCart[0].ProductID.String()
	}

	ev := &SubscriptionEvent{
		Provider:       ProviderDodo,
		EventID:        meta.EventID,
		EventType:      eventType,
		Action:         action,
		Email:          firstNonEmpty(data.Customer.Email, data.Metadata.value("email")),
		UserID:         data.Metadata.userID(),
		SubscriptionID: data.SubscriptionID.String(),
		PaymentID:      data.PaymentID.String(),
		ProductID:      productID,
		Trialing:       action == ActionActivate && strings.EqualFold(data.Status, "trialing"),
		PeriodStart:    parseTime(data.PreviousBillingDate),
		PeriodEnd:      parseTime(data.NextBillingDate),
	}
	if n.ResolvePlan != nil && productID != "" {
		ev.Plan = n.ResolvePlan(productID)
	}
	if ts := parseTime(body.Timestamp); ts != nil {
		ev.OccurredAt = *ts
	} else {
		ev.OccurredAt = time.Now().UTC()
	}
	return finishEvent(ev, payload)
}

package billing

import (
	"time"

	"github.com/ManuelReschke/BudgetFox/app/models"
	"github.com/go-playground/validator/v10"
)

// Provider identifies the payment processor that delivered an event.
type Provider string

const (
	ProviderDodo         Provider = models.BillingProviderDodo
	ProviderLemonSqueezy Provider = models.BillingProviderLemonSqueezy
	ProviderPhonePe      Provider = models.BillingProviderPhonePe
)

// Action is the provider-neutral lifecycle step an event requests.
type Action string

const (
	ActionActivate Action = "activate"
	ActionRenew    Action = "renew"
	ActionCancel   Action = "cancel"
	ActionFail     Action = "fail"
	ActionExpire   Action = "expire"
	ActionHold     Action = "hold"
	ActionIgnore   Action = "ignore"
)

// PaymentState is the outcome a provider reports for a one-off payment.
type PaymentState string

const (
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateFailed    PaymentState = "failed"
	PaymentStatePending   PaymentState = "pending"
)

// DeliveryMeta carries values the provider sends outside of the JSON body.
type DeliveryMeta struct {
	EventID   string
	EventName string
}

// SubscriptionEvent is the provider-agnostic shape every normalizer produces.
// Nothing past the normalizers branches on the provider.
type SubscriptionEvent struct {
	Provider  Provider
	EventID   string
	EventType string
	Action    Action

	Email  string
	UserID string
	// PaymentRef is a merchant transaction reference resolved through payment intents.
	PaymentRef   string
	PaymentState PaymentState

	SubscriptionID string
	PaymentID      string
	ProductID      string
	Plan           string
	Trialing       bool

	PeriodStart *time.Time
	PeriodEnd   *time.Time
	// DerivePeriod asks the reconciler to compute the period from the plan,
	// for providers that only report one-off payments.
	DerivePeriod bool
	OccurredAt   time.Time
}

// HasUserReference reports whether the event can be joined to a local user.
func (e *SubscriptionEvent) HasUserReference() bool {
	return e.UserID != "" || e.Email != "" || e.PaymentRef != ""
}

// MirrorEntry is the denormalized copy kept in the identity provider's user metadata.
type MirrorEntry struct {
	Status         string    `json:"status" validate:"required,oneof=pending active trialing on_hold cancelled failed expired inactive"`
	Plan           string    `json:"plan" validate:"required,oneof=monthly yearly none"`
	SubscriptionID string    `json:"subscriptionId,omitempty" validate:"max=191"`
	ProductID      string    `json:"productId,omitempty" validate:"max=191"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Validate checks an entry before it is written by hand.
func (m MirrorEntry) Validate() error {
	v := validator.New()

	return v.Struct(m)
}

// IsEntitled only looks at the status. The mirror carries no period end, so
// unlike the store path there is no expiry check here.
func (m *MirrorEntry) IsEntitled() bool {
	if m == nil {
		return false
	}
	return models.IsEntitlingSubscriptionStatus(m.Status)
}

// MirrorEntryFromSubscription builds the mirror copy of a snapshot.
func MirrorEntryFromSubscription(sub *models.Subscription) MirrorEntry {
	return MirrorEntry{
		Status:         sub.Status,
		Plan:           sub.Plan,
		SubscriptionID: models.StringValue(sub.ProviderSubscriptionID),
		ProductID:      models.StringValue(sub.ProviderProductID),
		UpdatedAt:      sub.UpdatedAt,
	}
}

// Outcome describes what reconciliation did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Result is returned by Service.Reconcile.
type Result struct {
	Outcome        Outcome
	UserID         string
	PreviousStatus string
	Status         string
	Subscription   *models.Subscription
}

// StatusChanged reports whether the applied event moved the user to a new status.
func (r *Result) StatusChanged() bool {
	return r != nil && r.Outcome == OutcomeApplied && r.PreviousStatus != r.Status
}

// WebhookEventInput is the normalized input for webhook ledger persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

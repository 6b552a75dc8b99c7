package models

import (
	"strings"
	"time"
)

// Billing provider constants used across billing-related models.
const (
	BillingProviderDodo         = "dodo"
	BillingProviderLemonSqueezy = "lemonsqueezy"
	BillingProviderPhonePe      = "phonepe"
)

const (
	SubscriptionPlanMonthly = "monthly"
	SubscriptionPlanYearly  = "yearly"
	SubscriptionPlanNone    = "none"
)

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusOnHold    = "on_hold"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusFailed    = "failed"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusInactive  = "inactive"
)

// Subscription is the single current subscription snapshot of a user.
// Rows are only ever written through an upsert keyed on UserID.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"-"`
	UserID                 string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_user_id" json:"user_id"`
	Email                  string     `gorm:"type:varchar(200);not null;default:'';index" json:"email"`
	Provider               string     `gorm:"type:varchar(20);not null;default:''" json:"provider"`
	Status                 string     `gorm:"type:varchar(20);not null;default:'inactive';index" json:"status"`
	Plan                   string     `gorm:"type:varchar(20);not null;default:'none'" json:"plan"`
	ProviderSubscriptionID *string    `gorm:"type:varchar(191);default:null;index" json:"provider_subscription_id,omitempty"`
	ProviderPaymentID      *string    `gorm:"type:varchar(191);default:null" json:"provider_payment_id,omitempty"`
	ProviderProductID      *string    `gorm:"type:varchar(191);default:null" json:"provider_product_id,omitempty"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	LastEventType          *string    `gorm:"type:varchar(100);default:null" json:"last_event_type,omitempty"`
	LastEventID            *string    `gorm:"type:varchar(191);default:null" json:"last_event_id,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// IsEntitledAt reports whether the snapshot grants access at the given instant.
// A present period end is always re-checked, an active status alone is not enough.
func (s *Subscription) IsEntitledAt(now time.Time) bool {
	if s == nil {
		return false
	}
	if !IsEntitlingSubscriptionStatus(s.Status) {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}

// HasAppliedEvent reports whether the given provider event is the one last written.
func (s *Subscription) HasAppliedEvent(provider, eventID string) bool {
	if s == nil || s.LastEventID == nil || *s.LastEventID == "" || eventID == "" {
		return false
	}
	return s.Provider == provider && *s.LastEventID == eventID
}

// IsEntitlingSubscriptionStatus is true for statuses that grant access.
func IsEntitlingSubscriptionStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// StringPtr returns nil for empty strings so nullable columns stay NULL.
func StringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// StringValue dereferences a nullable column.
func StringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

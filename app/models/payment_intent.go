package models

import "time"

const (
	PaymentIntentStatusCreated   = "created"
	PaymentIntentStatusCompleted = "completed"
	PaymentIntentStatusFailed    = "failed"
)

// PaymentIntent links a PhonePe merchant transaction to the user who started
// it. PhonePe callbacks carry neither the email nor our user id.
type PaymentIntent struct {
	ID                    uint      `gorm:"primaryKey" json:"-"`
	MerchantTransactionID string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"merchant_transaction_id"`
	UserID                string    `gorm:"type:varchar(191);not null;index" json:"user_id"`
	Email                 string    `gorm:"type:varchar(200);not null;default:''" json:"email"`
	Plan                  string    `gorm:"type:varchar(20);not null" json:"plan"`
	AmountPaise           int64     `gorm:"not null" json:"amount_paise"`
	Status                string    `gorm:"type:varchar(20);not null;default:'created'" json:"status"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

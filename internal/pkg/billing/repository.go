package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/BudgetFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
// Lookups return (nil, nil) when no row exists.
type Repository interface {
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	InsertSubscriptionIfAbsent(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, userID string) error
	CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetPaymentIntent(ctx context.Context, merchantTransactionID string) (*models.PaymentIntent, error)
	UpdatePaymentIntentStatus(ctx context.Context, merchantTransactionID, status string) error
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, userID, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription writes the full snapshot in one statement keyed on user_id.
func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"provider",
			"status",
			"plan",
			"provider_subscription_id",
			"provider_payment_id",
			"provider_product_id",
			"current_period_start",
			"current_period_end",
			"last_event_type",
			"last_event_id",
			"updated_at",
		}),
	}).Create(sub).Error
}

// InsertSubscriptionIfAbsent never overwrites a row a webhook may have written concurrently.
func (r *gormRepository) InsertSubscriptionIfAbsent(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(sub).Error; err != nil {
		return nil, err
	}

	var stored models.Subscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", sub.UserID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormRepository) DeleteSubscription(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Subscription{}).Error
}

func (r *gormRepository) CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *gormRepository) GetPaymentIntent(ctx context.Context, merchantTransactionID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).Where("merchant_transaction_id = ?", merchantTransactionID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *gormRepository) UpdatePaymentIntentStatus(ctx context.Context, merchantTransactionID, status string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("merchant_transaction_id = ?", merchantTransactionID).
		Update("status", status).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	if !created {
		if err := db.Model(&models.BillingWebhookEvent{}).
			Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
			Update("deliveries", gorm.Expr("deliveries + 1")).Error; err != nil {
			return false, nil, err
		}
	}

	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, userID, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	if userID != "" {
		updates["user_id"] = userID
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

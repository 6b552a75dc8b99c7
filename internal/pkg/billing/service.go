package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuelReschke/BudgetFox/app/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// UserDirectory resolves a billing email to the identity provider user id.
// Implementations return ErrUserNotFound when no account matches.
type UserDirectory interface {
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}

// Mirror is the non-authoritative copy of the subscription in identity metadata.
// ReadMirror returns (nil, nil) when the user has no subscription metadata.
type Mirror interface {
	WriteMirror(ctx context.Context, userID string, entry MirrorEntry) error
	ReadMirror(ctx context.Context, userID string) (*MirrorEntry, error)
	DeleteMirror(ctx context.Context, userID string) error
}

// Notifier tells a customer their subscription status changed.
type Notifier interface {
	NotifySubscriptionStatus(ctx context.Context, email, status, plan string) error
}

// ServiceConfig wires the billing service. Only Repository is required.
type ServiceConfig struct {
	Repository Repository
	Directory  UserDirectory
	Mirror     Mirror
	Notifier   Notifier
	Metrics    Metrics
	Logger     *zerolog.Logger

	// AsyncMirrorWrites lets Reconcile return before the mirror write is done.
	AsyncMirrorWrites  bool
	MirrorWriteTimeout time.Duration
	Now                func() time.Time
}

// Service reconciles provider events into the subscription store and mirror.
type Service struct {
	repo          Repository
	directory     UserDirectory
	mirror        Mirror
	notifier      Notifier
	metrics       Metrics
	logger        zerolog.Logger
	asyncMirror   bool
	mirrorTimeout time.Duration
	now           func() time.Time

	background sync.WaitGroup
}

// NewService creates a billing service from injected collaborators.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:          cfg.Repository,
		directory:     cfg.Directory,
		mirror:        cfg.Mirror,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		logger:        log.Logger,
		asyncMirror:   cfg.AsyncMirrorWrites,
		mirrorTimeout: cfg.MirrorWriteTimeout,
		now:           cfg.Now,
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	if s.metrics == nil {
		s.metrics = NoopMetrics{}
	}
	if s.mirrorTimeout <= 0 {
		s.mirrorTimeout = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cfg ServiceConfig) *Service {
	cfg.Repository = NewRepository(db)
	return NewService(cfg)
}

// Metrics exposes the configured recorder to the webhook handlers.
func (s *Service) Metrics() Metrics {
	return s.metrics
}

// Wait blocks until background mirror writes and notifications have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// Reconcile applies one normalized event. The store write is authoritative
// and its failure is returned as ErrTransientStore; the mirror write is best-effort.
// A redelivery of the event last applied to the user skips the store write
// but still repairs the mirror.
func (s *Service) Reconcile(ctx context.Context, ev *SubscriptionEvent) (*Result, error) {
	if ev == nil {
		return nil, errors.New("event is required")
	}
	start := s.now()
	defer func() {
		s.metrics.RecordWebhookProcessingDuration(string(ev.Provider), s.now().Sub(start))
	}()

	s.recordPaymentState(ctx, ev)

	if ev.Action == ActionIgnore {
		s.logger.Info().
			Str("provider", string(ev.Provider)).
			Str("event_id", ev.EventID).
			Str("event_type", ev.EventType).
			Msg("billing event ignored")
		s.metrics.RecordWebhookEvent(string(ev.Provider), ev.EventType, string(OutcomeIgnored))
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	targetStatus, ok := statusForAction(ev.Action, ev.Trialing)
	if !ok {
		return nil, fmt.Errorf("unsupported action %q", ev.Action)
	}

	userID, err := s.resolveUser(ctx, ev)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("provider", string(ev.Provider)).
			Str("event_id", ev.EventID).
			Str("event_type", ev.EventType).
			Str("email", ev.Email).
			Msg("billing event user resolution failed")
		return nil, err
	}

	existing, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, s.storeFailure(ev, userID, "load subscription", err)
	}

	if existing.HasAppliedEvent(string(ev.Provider), ev.EventID) {
		s.logger.Info().
			Str("provider", string(ev.Provider)).
			Str("event_id", ev.EventID).
			Str("user_id", userID).
			Msg("billing event already applied")
		s.writeMirror(ctx, userID, MirrorEntryFromSubscription(existing))
		s.metrics.RecordWebhookEvent(string(ev.Provider), ev.EventType, string(OutcomeDuplicate))
		return &Result{
			Outcome:        OutcomeDuplicate,
			UserID:         userID,
			PreviousStatus: existing.Status,
			Status:         existing.Status,
			Subscription:   existing,
		}, nil
	}

	previous := models.SubscriptionStatusInactive
	if existing != nil {
		previous = existing.Status
	}
	next := s.nextSnapshot(existing, userID, targetStatus, ev)
	if err := s.repo.UpsertSubscription(ctx, next); err != nil {
		return nil, s.storeFailure(ev, userID, "upsert subscription", err)
	}

	s.logger.Info().
		Str("provider", string(ev.Provider)).
		Str("event_id", ev.EventID).
		Str("event_type", ev.EventType).
		Str("action", string(ev.Action)).
		Str("user_id", userID).
		Str("previous_status", previous).
		Str("status", next.Status).
		Str("plan", next.Plan).
		Time("occurred_at", ev.OccurredAt).
		Msg("subscription updated")
	s.metrics.RecordWebhookEvent(string(ev.Provider), ev.EventType, string(OutcomeApplied))

	result := &Result{
		Outcome:        OutcomeApplied,
		UserID:         userID,
		PreviousStatus: previous,
		Status:         next.Status,
		Subscription:   next,
	}
	if result.StatusChanged() {
		s.metrics.RecordStatusTransition(string(ev.Provider), previous, next.Status)
		s.notify(next)
	}
	s.writeMirror(ctx, userID, MirrorEntryFromSubscription(next))
	return result, nil
}

func (s *Service) resolveUser(ctx context.Context, ev *SubscriptionEvent) (string, error) {
	if ev.UserID != "" {
		return ev.UserID, nil
	}
	if ev.PaymentRef != "" {
		intent, err := s.repo.GetPaymentIntent(ctx, ev.PaymentRef)
		if err != nil {
			return "", fmt.Errorf("%w: load payment intent: %v", ErrTransientStore, err)
		}
		if intent != nil {
			if ev.Email == "" {
				ev.Email = strings.ToLower(intent.Email)
			}
			if ev.Plan == "" {
				ev.Plan = intent.Plan
			}
			return intent.UserID, nil
		}
	}
	if ev.Email == "" {
		return "", fmt.Errorf("%w: no email or known payment reference", ErrUnresolvedUser)
	}
	if s.directory == nil {
		return "", fmt.Errorf("%w: no user directory configured", ErrUnresolvedUser)
	}
	userID, err := s.directory.FindUserIDByEmail(ctx, ev.Email)
	if errors.Is(err, ErrUserNotFound) || (err == nil && userID == "") {
		return "", fmt.Errorf("%w: no account for %s", ErrUnresolvedUser, ev.Email)
	}
	if err != nil {
		return "", fmt.Errorf("%w: identity lookup: %v", ErrTransientStore, err)
	}
	return userID, nil
}

func (s *Service) nextSnapshot(existing *models.Subscription, userID, status string, ev *SubscriptionEvent) *models.Subscription {
	now := s.now().UTC()
	next := &models.Subscription{
		UserID: userID,
		Plan:   models.SubscriptionPlanNone,
	}
	if existing != nil {
		copied := *existing
		next = &copied
	}

	next.Provider = string(ev.Provider)
	next.Status = status
	if ev.Email != "" {
		next.Email = ev.Email
	}
	if plan := normalizePlan(ev.Plan); plan != models.SubscriptionPlanNone {
		next.Plan = plan
	} else if isActivating(ev.Action) && normalizePlan(next.Plan) == models.SubscriptionPlanNone {
		next.Plan = models.SubscriptionPlanMonthly
	}
	if v := models.StringPtr(ev.SubscriptionID); v != nil {
		next.ProviderSubscriptionID = v
	}
	if v := models.StringPtr(ev.PaymentID); v != nil {
		next.ProviderPaymentID = v
	}
	if v := models.StringPtr(ev.ProductID); v != nil {
		next.ProviderProductID = v
	}

	switch {
	case ev.PeriodEnd != nil:
		next.CurrentPeriodEnd = ev.PeriodEnd
		if ev.PeriodStart != nil {
			next.CurrentPeriodStart = ev.PeriodStart
		}
	case ev.DerivePeriod && isActivating(ev.Action):
		// Paying before the current period ends extends it.
		start := now
		if next.CurrentPeriodEnd != nil && next.CurrentPeriodEnd.After(now) {
			start = next.CurrentPeriodEnd.UTC()
		}
		end := periodEndForPlan(start, next.Plan)
		next.CurrentPeriodStart = &start
		next.CurrentPeriodEnd = &end
	case isActivating(ev.Action) && next.CurrentPeriodEnd != nil && !next.CurrentPeriodEnd.After(now):
		// An activation without period data must not be cancelled out by a stale end.
		next.CurrentPeriodEnd = nil
	}

	next.LastEventType = models.StringPtr(ev.EventType)
	next.LastEventID = models.StringPtr(ev.EventID)
	next.UpdatedAt = now
	return next
}

func (s *Service) storeFailure(ev *SubscriptionEvent, userID, op string, err error) error {
	s.logger.Error().Err(err).
		Str("provider", string(ev.Provider)).
		Str("event_id", ev.EventID).
		Str("user_id", userID).
		Msg("billing store " + op + " failed")
	return fmt.Errorf("%w: %s: %v", ErrTransientStore, op, err)
}

func (s *Service) recordPaymentState(ctx context.Context, ev *SubscriptionEvent) {
	if ev.PaymentRef == "" {
		return
	}
	var status string
	switch ev.PaymentState {
	case PaymentStateCompleted:
		status = models.PaymentIntentStatusCompleted
	case PaymentStateFailed:
		status = models.PaymentIntentStatusFailed
	default:
		return
	}
	if err := s.repo.UpdatePaymentIntentStatus(ctx, ev.PaymentRef, status); err != nil {
		s.logger.Warn().Err(err).
			Str("merchant_transaction_id", ev.PaymentRef).
			Str("status", status).
			Msg("failed to update payment intent")
	}
}

func (s *Service) writeMirror(ctx context.Context, userID string, entry MirrorEntry) {
	if s.mirror == nil {
		return
	}
	write := func(ctx context.Context) {
		if err := s.mirror.WriteMirror(ctx, userID, entry); err != nil {
			s.metrics.RecordMirrorWrite("error")
			s.logger.Warn().Err(err).
				Str("user_id", userID).
				Str("status", entry.Status).
				Msg("subscription mirror write failed")
			return
		}
		s.metrics.RecordMirrorWrite("ok")
	}

	if !s.asyncMirror {
		wctx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
		defer cancel()
		write(wctx)
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		wctx, cancel := context.WithTimeout(context.Background(), s.mirrorTimeout)
		defer cancel()
		write(wctx)
	}()
}

func (s *Service) notify(sub *models.Subscription) {
	if s.notifier == nil || sub.Email == "" {
		return
	}
	email, status, plan := sub.Email, sub.Status, sub.Plan
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.mirrorTimeout)
		defer cancel()
		if err := s.notifier.NotifySubscriptionStatus(ctx, email, status, plan); err != nil {
			s.logger.Warn().Err(err).Str("status", status).Msg("subscription notification failed")
		}
	}()
}

// IsActive answers the gate's store query. Errors are returned so the
// caller can fall back to the mirror.
func (s *Service) IsActive(ctx context.Context, userID string) (bool, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub.IsEntitledAt(s.now()), nil
}

// GetSubscription returns the snapshot or nil when the user has none.
func (s *Service) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.repo.GetSubscription(ctx, userID)
}

// EnsureSubscription returns the snapshot, lazily creating an inactive one.
func (s *Service) EnsureSubscription(ctx context.Context, userID, email string) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user_id is required")
	}
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil || sub != nil {
		return sub, err
	}
	return s.repo.InsertSubscriptionIfAbsent(ctx, &models.Subscription{
		UserID: userID,
		Email:  strings.ToLower(strings.TrimSpace(email)),
		Status: models.SubscriptionStatusInactive,
		Plan:   models.SubscriptionPlanNone,
	})
}

// DeleteUser removes the snapshot and mirror of a deleted identity.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteSubscription(ctx, userID); err != nil {
		return fmt.Errorf("%w: delete subscription: %v", ErrTransientStore, err)
	}
	if s.mirror != nil {
		if err := s.mirror.DeleteMirror(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("subscription mirror delete failed")
		}
	}
	s.logger.Info().Str("user_id", userID).Msg("subscription removed for deleted user")
	return nil
}

// ReadMirror returns the mirror copy for support tooling.
func (s *Service) ReadMirror(ctx context.Context, userID string) (*MirrorEntry, error) {
	if s.mirror == nil {
		return nil, errors.New("subscription mirror not configured")
	}
	return s.mirror.ReadMirror(ctx, userID)
}

// OverrideMirror writes the mirror directly, bypassing the store.
// Development-only bypass; the route is not registered in production.
func (s *Service) OverrideMirror(ctx context.Context, userID string, entry MirrorEntry) error {
	if s.mirror == nil {
		return errors.New("subscription mirror not configured")
	}
	entry.UpdatedAt = s.now().UTC()
	s.logger.Warn().
		Str("user_id", userID).
		Str("status", entry.Status).
		Str("plan", entry.Plan).
		Msg("subscription mirror overridden manually")
	return s.mirror.WriteMirror(ctx, userID, entry)
}

// CreatePaymentIntent stores the link between a merchant transaction and a user.
func (s *Service) CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	if intent == nil || intent.MerchantTransactionID == "" || intent.UserID == "" {
		return errors.New("merchant_transaction_id and user_id are required")
	}
	intent.Plan = normalizePlan(intent.Plan)
	if intent.Plan == models.SubscriptionPlanNone {
		intent.Plan = models.SubscriptionPlanMonthly
	}
	if intent.Status == "" {
		intent.Status = models.PaymentIntentStatusCreated
	}
	return s.repo.CreatePaymentIntent(ctx, intent)
}

// GetPaymentIntent returns the intent or nil when unknown.
func (s *Service) GetPaymentIntent(ctx context.Context, merchantTransactionID string) (*models.PaymentIntent, error) {
	return s.repo.GetPaymentIntent(ctx, merchantTransactionID)
}

// RecordWebhookEvent persists verified deliveries idempotently. The ledger
// is for support lookups; it never short-circuits reconciliation.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		eventID = payloadEventID([]byte(in.PayloadJSON))
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		Deliveries:      1,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, userID string, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, userID, errMsg)
}

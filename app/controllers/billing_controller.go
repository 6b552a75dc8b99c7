package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/identity"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const webhookTimeout = 15 * time.Second

// EmailLookupCache drops cached email lookups after identity changes.
type EmailLookupCache interface {
	ForgetEmail(ctx context.Context, email string)
}

// BillingController receives provider webhooks and identity lifecycle events.
type BillingController struct {
	billingCfg  config.BillingConfig
	identityCfg config.IdentityConfig
	service     *billing.Service
	normalizers billing.Normalizers
	lookups     EmailLookupCache
}

func NewBillingController(cfg config.Config, service *billing.Service, normalizers billing.Normalizers, lookups EmailLookupCache) *BillingController {
	return &BillingController{
		billingCfg:  cfg.Billing,
		identityCfg: cfg.Identity,
		service:     service,
		normalizers: normalizers,
		lookups:     lookups,
	}
}

// HandleDodoWebhook handles Svix-signed Dodo Payments deliveries.
func (h *BillingController) HandleDodoWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if err := billing.VerifySvixEnvelope(payload, requestHeaders(c), h.billingCfg.DodoWebhookSecret); err != nil {
		return h.fail(c, billing.ProviderDodo, err)
	}
	meta := billing.DeliveryMeta{
		EventID:   firstHeaderValue(c, billing.HeaderWebhookID, "svix-id"),
		EventName: firstHeaderValue(c, "webhook-event-type"),
	}
	return h.process(c, billing.ProviderDodo, payload, meta)
}

// HandleLemonSqueezyWebhook handles HMAC-signed Lemon Squeezy deliveries.
func (h *BillingController) HandleLemonSqueezyWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if err := billing.VerifyHMACSHA256Hex(payload, c.Get("X-Signature"), h.billingCfg.LemonSqueezyWebhookSecret); err != nil {
		return h.fail(c, billing.ProviderLemonSqueezy, err)
	}
	meta := billing.DeliveryMeta{EventName: firstHeaderValue(c, "X-Event-Name")}
	return h.process(c, billing.ProviderLemonSqueezy, payload, meta)
}

// HandlePhonePeCallback handles PhonePe server-to-server payment callbacks.
func (h *BillingController) HandlePhonePeCallback(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	response, err := billing.ParsePhonePeCallback(payload)
	if err != nil {
		return h.fail(c, billing.ProviderPhonePe, err)
	}
	pp := h.billingCfg.PhonePe
	if err := billing.VerifyPhonePeChecksum(response, "", c.Get("X-VERIFY"), pp.SaltKey, pp.SaltIndex); err != nil {
		return h.fail(c, billing.ProviderPhonePe, err)
	}
	return h.process(c, billing.ProviderPhonePe, payload, billing.DeliveryMeta{})
}

// HandleIdentityWebhook keeps snapshots in step with identity provider users.
func (h *BillingController) HandleIdentityWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if err := billing.VerifySvixEnvelope(payload, requestHeaders(c), h.identityCfg.WebhookSecret); err != nil {
		return h.failIdentity(c, err)
	}
	ev, err := identity.ParseUserEvent(payload)
	if err != nil {
		return h.failIdentity(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	userID := ev.Data.ID
	switch ev.Type {
	case identity.EventUserCreated:
		if _, err := h.service.EnsureSubscription(ctx, userID, ev.Data.PrimaryEmail()); err != nil {
			return h.failIdentity(c, err)
		}
		h.forgetEmail(ctx, ev.Data.PrimaryEmail())
	case identity.EventUserUpdated:
		for _, addr := range ev.Data.EmailAddresses {
			h.forgetEmail(ctx, addr.EmailAddress)
		}
	case identity.EventUserDeleted:
		if err := h.service.DeleteUser(ctx, userID); err != nil {
			return h.failIdentity(c, err)
		}
	default:
		log.Debug().Str("event_type", ev.Type).Msg("identity event ignored")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// process normalizes a verified delivery, records it in the ledger and
// reconciles it.
func (h *BillingController) process(c *fiber.Ctx, provider billing.Provider, payload []byte, meta billing.DeliveryMeta) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	ev, normErr := h.normalizers.Normalize(provider, payload, meta)
	if normErr != nil && (ev == nil || !errors.Is(normErr, billing.ErrNotApplicable)) {
		return h.fail(c, provider, normErr)
	}

	ledgerID := h.recordDelivery(ctx, provider, ev, payload)
	if normErr != nil {
		h.markProcessed(ctx, ledgerID, "", normErr)
		return h.fail(c, provider, normErr)
	}

	result, err := h.service.Reconcile(ctx, ev)
	userID := ""
	if result != nil {
		userID = result.UserID
	}
	h.markProcessed(ctx, ledgerID, userID, err)
	if err != nil {
		return h.fail(c, provider, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

func (h *BillingController) recordDelivery(ctx context.Context, provider billing.Provider, ev *billing.SubscriptionEvent, payload []byte) uint {
	_, stored, err := h.service.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        string(provider),
		ProviderEventID: ev.EventID,
		EventType:       ev.EventType,
		PayloadJSON:     string(payload),
	})
	if err != nil || stored == nil {
		log.Warn().Err(err).
			Str("provider", string(provider)).
			Str("event_id", ev.EventID).
			Msg("webhook ledger write failed")
		return 0
	}
	return stored.ID
}

func (h *BillingController) markProcessed(ctx context.Context, ledgerID uint, userID string, processingErr error) {
	if ledgerID == 0 {
		return
	}
	if err := h.service.MarkWebhookProcessed(ctx, ledgerID, userID, processingErr); err != nil {
		log.Warn().Err(err).Uint("webhook_event_id", ledgerID).Msg("webhook ledger update failed")
	}
}

func (h *BillingController) fail(c *fiber.Ctx, provider billing.Provider, err error) error {
	kind := billing.ErrorKind(err)
	h.service.Metrics().RecordWebhookError(string(provider), kind)

	status := billing.StatusForError(err)
	evt := log.Warn()
	if status >= fiber.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).
		Str("provider", string(provider)).
		Str("error_kind", kind).
		Int("status", status).
		Msg("webhook not applied")
	return webhookErrorResponse(c, status, err)
}

func (h *BillingController) failIdentity(c *fiber.Ctx, err error) error {
	status := billing.StatusForError(err)
	log.Warn().Err(err).Int("status", status).Msg("identity webhook not applied")
	return webhookErrorResponse(c, status, err)
}

func (h *BillingController) forgetEmail(ctx context.Context, email string) {
	if h.lookups != nil && email != "" {
		h.lookups.ForgetEmail(ctx, email)
	}
}

func webhookErrorResponse(c *fiber.Ctx, status int, err error) error {
	switch {
	case status == fiber.StatusOK:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
	case errors.Is(err, billing.ErrMalformedPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	case status == fiber.StatusBadRequest:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
}

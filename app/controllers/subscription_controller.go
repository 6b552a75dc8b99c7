package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/BudgetFox/app/models"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/usercontext"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const requestTimeout = 10 * time.Second

// PaymentGateway starts and confirms one-off PhonePe payments.
type PaymentGateway interface {
	Configured() bool
	InitiatePayment(ctx context.Context, req billing.PaymentRequest) (string, error)
	CheckStatus(ctx context.Context, merchantTransactionID string) ([]byte, error)
}

// SubscriptionController serves the signed-in user's subscription endpoints.
type SubscriptionController struct {
	service  *billing.Service
	gateway  PaymentGateway
	phonePe  config.PhonePeConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewSubscriptionController(cfg config.Config, service *billing.Service, gateway PaymentGateway) *SubscriptionController {
	return &SubscriptionController{
		service:  service,
		gateway:  gateway,
		phonePe:  cfg.Billing.PhonePe,
		validate: validator.New(),
		now:      time.Now,
	}
}

// HandleSubscriptionStatus answers whether the caller is subscribed right now.
// Users without a snapshot get an inactive one.
func (h *SubscriptionController) HandleSubscriptionStatus(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	sub, err := h.service.EnsureSubscription(ctx, uc.UserID, uc.Email)
	if err != nil {
		log.Error().Err(err).Str("user_id", uc.UserID).Msg("subscription status lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_unavailable"})
	}

	now := h.now().UTC()
	return c.JSON(fiber.Map{
		"isSubscribed":     sub.IsEntitledAt(now),
		"userId":           uc.UserID,
		"checkedAt":        now.Format(time.RFC3339),
		"status":           sub.Status,
		"plan":             sub.Plan,
		"currentPeriodEnd": formatTimePtr(sub.CurrentPeriodEnd),
	})
}

// HandleDashboardSession returns the caller's snapshot to protected pages.
func (h *SubscriptionController) HandleDashboardSession(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	sub, err := h.service.GetSubscription(ctx, uc.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", uc.UserID).Msg("dashboard session lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_unavailable"})
	}
	source, _ := c.Locals(usercontext.KeySubscriptionSource).(string)
	return c.JSON(fiber.Map{
		"userId":       uc.UserID,
		"email":        uc.Email,
		"accessSource": source,
		"subscription": sub,
	})
}

// HandleGetOverride returns the mirror copy as the identity provider holds it.
func (h *SubscriptionController) HandleGetOverride(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	entry, err := h.service.ReadMirror(ctx, uc.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", uc.UserID).Msg("subscription mirror read failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "mirror_unavailable"})
	}
	return c.JSON(fiber.Map{"userId": uc.UserID, "subscription": entry})
}

type overrideRequest struct {
	Status         string `json:"status"`
	Plan           string `json:"plan"`
	SubscriptionID string `json:"subscriptionId"`
	ProductID      string `json:"productId"`
}

// HandlePostOverride writes the mirror directly. The store is left untouched.
func (h *SubscriptionController) HandlePostOverride(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	var req overrideRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	entry := billing.MirrorEntry{
		Status:         strings.ToLower(strings.TrimSpace(req.Status)),
		Plan:           strings.ToLower(strings.TrimSpace(req.Plan)),
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		ProductID:      strings.TrimSpace(req.ProductID),
	}
	if entry.Plan == "" {
		entry.Plan = models.SubscriptionPlanNone
	}
	if err := entry.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	if err := h.service.OverrideMirror(ctx, uc.UserID, entry); err != nil {
		log.Error().Err(err).Str("user_id", uc.UserID).Msg("subscription mirror override failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "mirror_unavailable"})
	}
	return c.JSON(fiber.Map{"userId": uc.UserID, "subscription": entry})
}

type phonePePayRequest struct {
	Plan string `json:"plan" validate:"required,oneof=monthly yearly"`
}

// HandlePhonePePay starts a PhonePe checkout for the caller.
func (h *SubscriptionController) HandlePhonePePay(c *fiber.Ctx) error {
	if h.gateway == nil || !h.gateway.Configured() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments_unavailable"})
	}
	uc := usercontext.GetUserContext(c)

	var req phonePePayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	req.Plan = strings.ToLower(strings.TrimSpace(req.Plan))
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	amount := h.phonePe.AmountForPlan(req.Plan)
	txnID := newMerchantTransactionID()

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	intent := &models.PaymentIntent{
		MerchantTransactionID: txnID,
		UserID:                uc.UserID,
		Email:                 uc.Email,
		Plan:                  req.Plan,
		AmountPaise:           amount,
	}
	if err := h.service.CreatePaymentIntent(ctx, intent); err != nil {
		log.Error().Err(err).Str("user_id", uc.UserID).Msg("payment intent create failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_failed"})
	}

	redirectURL, err := h.gateway.InitiatePayment(ctx, billing.PaymentRequest{
		MerchantTransactionID: txnID,
		MerchantUserID:        merchantUserID(uc.UserID),
		AmountPaise:           amount,
	})
	if err != nil {
		log.Error().Err(err).
			Str("user_id", uc.UserID).
			Str("merchant_transaction_id", txnID).
			Msg("phonepe pay request failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "payment_failed"})
	}

	return c.JSON(fiber.Map{
		"merchantTransactionId": txnID,
		"redirectUrl":           redirectURL,
	})
}

// HandlePhonePeStatus confirms a PhonePe payment synchronously and reconciles it.
func (h *SubscriptionController) HandlePhonePeStatus(c *fiber.Ctx) error {
	if h.gateway == nil || !h.gateway.Configured() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments_unavailable"})
	}
	uc := usercontext.GetUserContext(c)
	txnID := strings.TrimSpace(c.Params("txnId"))

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	intent, err := h.service.GetPaymentIntent(ctx, txnID)
	if err != nil {
		log.Error().Err(err).Str("merchant_transaction_id", txnID).Msg("payment intent lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}
	if intent == nil || intent.UserID != uc.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})
	}

	raw, err := h.gateway.CheckStatus(ctx, txnID)
	if err != nil {
		log.Warn().Err(err).
			Str("merchant_transaction_id", txnID).
			Str("error_kind", billing.ErrorKind(err)).
			Msg("phonepe status check failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}

	ev, err := billing.PhonePeNormalizer{}.NormalizeStatus(raw)
	if err != nil && (ev == nil || !errors.Is(err, billing.ErrNotApplicable)) {
		log.Warn().Err(err).Str("merchant_transaction_id", txnID).Msg("phonepe status response unreadable")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}
	if ev.PaymentRef != "" && ev.PaymentRef != txnID {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}
	ev.PaymentRef = txnID

	result, err := h.service.Reconcile(ctx, ev)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}

	resp := fiber.Map{
		"merchantTransactionId": txnID,
		"paymentState":          paymentStateLabel(ev.PaymentState),
		"outcome":               string(result.Outcome),
	}
	if result.Subscription != nil {
		resp["status"] = result.Subscription.Status
		resp["plan"] = result.Subscription.Plan
		resp["currentPeriodEnd"] = formatTimePtr(result.Subscription.CurrentPeriodEnd)
	}
	return c.JSON(resp)
}

func paymentStateLabel(state billing.PaymentState) string {
	if state == "" {
		return "unknown"
	}
	return string(state)
}

// newMerchantTransactionID fits PhonePe's 38 character limit.
func newMerchantTransactionID() string {
	return "bf_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// merchantUserID strips characters PhonePe rejects from identity user ids.
func merchantUserID(userID string) string {
	var b strings.Builder
	for _, r := range userID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() > 36 {
		return b.String()[:36]
	}
	return b.String()
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

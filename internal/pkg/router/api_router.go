package router

import (
	"github.com/ManuelReschke/BudgetFox/internal/pkg/constants"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	cfg := h.deps.Config
	sub := h.deps.Subscription

	api := app.Group(constants.APIRoute, newLimiter(cfg.Server, h.deps.LimiterStorage), middleware.RequireAPISessionAuth)

	api.Get("/subscription/status", sub.HandleSubscriptionStatus)
	if cfg.SubscriptionOverrideEnabled {
		api.Get("/subscription/override", sub.HandleGetOverride)
		api.Post("/subscription/override", sub.HandlePostOverride)
	}

	api.Post("/payments/phonepe/pay", sub.HandlePhonePePay)
	api.Get("/payments/phonepe/status/:txnId", sub.HandlePhonePeStatus)

	api.Get("/dashboard/session", sub.HandleDashboardSession)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

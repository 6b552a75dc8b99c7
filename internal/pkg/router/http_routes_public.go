package router

import (
	"github.com/ManuelReschke/BudgetFox/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	cfg := h.deps.Config

	app.Get(constants.PublicRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "budgetfox"})
	})
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	gatherer := h.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get(constants.MetricsRoute, adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if cfg.Server.MonitorUser != "" && cfg.Server.MonitorPassword != "" {
		app.Get(constants.MonitorRoute, basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.Server.MonitorUser: cfg.Server.MonitorPassword,
			},
		}), monitor.New())
	}

	// Provider webhooks (signature-verified in the controller)
	webhooks := app.Group(constants.WebhooksRoute, newLimiter(cfg.Server, h.deps.LimiterStorage))
	webhooks.Post("/dodo", h.deps.Billing.HandleDodoWebhook)
	webhooks.Post("/lemonsqueezy", h.deps.Billing.HandleLemonSqueezyWebhook)
	webhooks.Post("/phonepe", h.deps.Billing.HandlePhonePeCallback)
	webhooks.Post("/identity", h.deps.Billing.HandleIdentityWebhook)
}

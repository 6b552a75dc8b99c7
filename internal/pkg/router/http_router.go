package router

import (
	"time"

	"github.com/ManuelReschke/BudgetFox/app/controllers"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	cfg := h.deps.Config

	// Apply UserContext middleware globally, then classify every route
	app.Use(middleware.UserContextMiddleware(h.deps.Verifier, cfg.Identity.SessionCookie))
	app.Use(middleware.NewSubscriptionGate(cfg.Gate, h.deps.Checker, h.deps.Decisions).Handler)

	h.registerPublicRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func newLimiter(cfg config.ServerConfig, storage fiber.Storage) fiber.Handler {
	limit := cfg.RateLimitMax
	if limit <= 0 {
		limit = 120
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:          limit,
		Expiration:   window,
		KeyGenerator: controllers.ClientIP,
		Storage:      storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		},
	})
}

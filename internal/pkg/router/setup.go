package router

import (
	"github.com/ManuelReschke/BudgetFox/app/controllers"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired components the routes dispatch to.
type Dependencies struct {
	Config       config.Config
	Billing      *controllers.BillingController
	Subscription *controllers.SubscriptionController
	Verifier     middleware.SessionVerifier
	Checker      middleware.AccessChecker
	Decisions    middleware.DecisionRecorder
	Gatherer     prometheus.Gatherer
	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the user context and the gate, so it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

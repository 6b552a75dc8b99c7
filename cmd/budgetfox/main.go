package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/ManuelReschke/BudgetFox/app/controllers"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/apidocs"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/cache"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/database"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/env"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/identity"
	applog "github.com/ManuelReschke/BudgetFox/internal/pkg/logger"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/mail"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/metrics"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/router"
)

const shutdownTimeout = 20 * time.Second

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	applog.Setup(cfg.Log)

	app, svc := NewApplication(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(cfg.ListenAddress()); err != nil {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()
	log.Info().Str("addr", cfg.ListenAddress()).Str("env", cfg.AppEnv).Msg("budgetfox started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	// pending mirror writes and notifications
	svc.Wait()
}

// NewApplication wires storage, identity, billing and the router into a
// fiber app.
func NewApplication(cfg config.Config) (*fiber.App, *billing.Service) {
	db, err := database.SetupDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	redisClient := cache.SetupCache(cfg.Cache)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "budgetfox")

	identityClient := identity.NewClient(cfg.Identity, cache.NewStore(redisClient, "identity:"))
	mirror := identity.NewMetadataMirror(identityClient)
	notifier := mail.NewNotifier(mail.NewMailer(cfg.Mail), "https://"+cfg.Server.PublicDomain, cfg.Gate.PricingRoute)

	svc := billing.NewServiceFromDB(db, billing.ServiceConfig{
		Directory:          identityClient,
		Mirror:             mirror,
		Notifier:           notifier,
		Metrics:            m,
		AsyncMirrorWrites:  cfg.Billing.AsyncMirrorWrites,
		MirrorWriteTimeout: cfg.Billing.MirrorWriteTimeout,
	})
	normalizers := billing.NewNormalizers(
		billing.DodoNormalizer{ResolvePlan: cfg.Billing.PlanForProducts},
		billing.LemonSqueezyNormalizer{ResolvePlan: cfg.Billing.PlanForProducts},
		billing.PhonePeNormalizer{},
	)

	deps := router.Dependencies{
		Config:         cfg,
		Billing:        controllers.NewBillingController(cfg, svc, normalizers, identityClient),
		Subscription:   controllers.NewSubscriptionController(cfg, svc, billing.NewPhonePeClient(cfg.Billing.PhonePe, m)),
		Checker:        entitlements.NewChecker(svc, svc, cfg.Gate.MirrorTimeout),
		Decisions:      m,
		Gatherer:       reg,
		LimiterStorage: cache.NewFiberStorage(cfg.Cache),
	}
	if verifier, err := identity.NewVerifier(cfg.Identity.JWTPublicKeyPEM); err != nil {
		log.Warn().Err(err).Msg("session verification disabled, every request is anonymous")
	} else {
		deps.Verifier = verifier
	}

	app := fiber.New(fiber.Config{
		AppName:      "BudgetFox",
		BodyLimit:    1 << 20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	basePath, err := apidocs.FindBasePath("./", "../../", "../../../")
	if err == nil {
		_, err = apidocs.Load(context.Background(), basePath+apidocs.DocumentPath)
	}
	if err != nil {
		log.Warn().Err(err).Msg("api docs not mounted")
	} else {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + apidocs.DocumentPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, deps)

	return app, svc
}

package router

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuelReschke/BudgetFox/app/controllers"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/apidocs"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/identity"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenVerifier map[string]string

func (v tokenVerifier) Verify(token string) (*identity.Session, error) {
	if userID, ok := v[token]; ok {
		return &identity.Session{UserID: userID}, nil
	}
	return nil, errors.New("unknown token")
}

type denyChecker struct{}

func (denyChecker) Check(context.Context, string, *billing.MirrorEntry) entitlements.Decision {
	return entitlements.Decision{Source: entitlements.SourceStore}
}

func newTestApp(t *testing.T, overrideEnabled bool) *fiber.App {
	t.Helper()
	cfg := config.Config{
		Identity: config.IdentityConfig{SessionCookie: "__session"},
		Gate: config.GateConfig{
			SignInRoute:       "/sign-in",
			PricingRoute:      "/pricing",
			PublicPrefixes:    []string{"/", "/webhooks/", "/metrics", "/healthz"},
			AuthOnlyPrefixes:  []string{"/api/subscription", "/api/payments"},
			ProtectedPrefixes: []string{"/api/dashboard"},
		},
		SubscriptionOverrideEnabled: overrideEnabled,
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "budgetfox")
	svc := billing.NewService(billing.ServiceConfig{Metrics: m})

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Config:       cfg,
		Billing:      controllers.NewBillingController(cfg, svc, billing.NewNormalizers(), nil),
		Subscription: controllers.NewSubscriptionController(cfg, svc, nil),
		Verifier:     tokenVerifier{"good": "user_1"},
		Checker:      denyChecker{},
		Decisions:    m,
		Gatherer:     reg,
	})
	return app
}

func TestPublicRoutes(t *testing.T) {
	app := newTestApp(t, false)

	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhookWithoutSecretIsRejected(t *testing.T) {
	app := newTestApp(t, false)

	req := httptest.NewRequest("POST", "/webhooks/lemonsqueezy", strings.NewReader(`{}`))
	req.Header.Set("X-Signature", "abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `budgetfox_billing_webhook_errors_total{error_type="secret_missing",provider="lemonsqueezy"} 1`)
}

func TestAPIRequiresSession(t *testing.T) {
	app := newTestApp(t, true)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/subscription/override", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestOverrideRouteOnlyWhenEnabled(t *testing.T) {
	app := newTestApp(t, false)

	req := httptest.NewRequest("POST", "/api/subscription/override", strings.NewReader(`{"status":"active","plan":"monthly"}`))
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestProtectedAPIDeniedWithoutSubscription(t *testing.T) {
	app := newTestApp(t, false)

	req := httptest.NewRequest("GET", "/api/dashboard/session", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestPaymentsUnavailableWithoutGateway(t *testing.T) {
	app := newTestApp(t, false)

	req := httptest.NewRequest("POST", "/api/payments/phonepe/pay", strings.NewReader(`{"plan":"monthly"}`))
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestDocumentedOperationsAreRegistered(t *testing.T) {
	app := newTestApp(t, true)
	doc, err := apidocs.Load(t.Context(), filepath.Join("../../../", apidocs.DocumentPath))
	require.NoError(t, err)

	registered := map[string]bool{}
	for _, r := range app.GetRoutes(true) {
		registered[r.Method+" "+r.Path] = true
	}
	for _, op := range apidocs.Operations(doc) {
		assert.True(t, registered[op], "documented operation %q is not routed", op)
	}
}

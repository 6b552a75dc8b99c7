package middleware

import (
	"context"
	"sort"
	"strings"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
)

// RouteClass is how the gate treats a path.
type RouteClass string

const (
	RoutePublic    RouteClass = "public"
	RouteAuthOnly  RouteClass = "auth_only"
	RouteProtected RouteClass = "protected"
)

type routePrefix struct {
	prefix string
	class  RouteClass
}

// RouteClassifier maps paths to a RouteClass by longest matching prefix.
// Unlisted paths are auth-only: signed in, no subscription needed.
type RouteClassifier struct {
	prefixes []routePrefix
}

func NewRouteClassifier(cfg config.GateConfig) RouteClassifier {
	var prefixes []routePrefix
	add := func(list []string, class RouteClass) {
		for _, p := range list {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, routePrefix{prefix: p, class: class})
			}
		}
	}
	add(cfg.PublicPrefixes, RoutePublic)
	add(cfg.AuthOnlyPrefixes, RouteAuthOnly)
	add(cfg.ProtectedPrefixes, RouteProtected)
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i].prefix) > len(prefixes[j].prefix)
	})
	return RouteClassifier{prefixes: prefixes}
}

func (r RouteClassifier) Classify(path string) RouteClass {
	for _, p := range r.prefixes {
		if matchPrefix(path, p.prefix) {
			return p.class
		}
	}
	return RouteAuthOnly
}

func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// AccessChecker decides whether a user holds an entitling subscription.
type AccessChecker interface {
	Check(ctx context.Context, userID string, sessionMirror *billing.MirrorEntry) entitlements.Decision
}

// DecisionRecorder counts gate decisions.
type DecisionRecorder interface {
	RecordGateDecision(routeClass, decision, source string)
}

// SubscriptionGate guards every route by its class: public routes pass,
// auth-only routes need a session, protected routes need a session and an
// entitling subscription.
type SubscriptionGate struct {
	classifier   RouteClassifier
	checker      AccessChecker
	recorder     DecisionRecorder
	requireAuth  fiber.Handler
	pricingRoute string
}

func NewSubscriptionGate(cfg config.GateConfig, checker AccessChecker, recorder DecisionRecorder) *SubscriptionGate {
	return &SubscriptionGate{
		classifier:   NewRouteClassifier(cfg),
		checker:      checker,
		recorder:     recorder,
		requireAuth:  RequireAuth(cfg.SignInRoute),
		pricingRoute: cfg.PricingRoute,
	}
}

func (g *SubscriptionGate) Handler(c *fiber.Ctx) error {
	class := g.classifier.Classify(c.Path())
	if class == RoutePublic {
		return c.Next()
	}

	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		g.record(class, "unauthenticated", entitlements.SourceNone)
		if isAPIPath(c.Path()) {
			return RequireAPISessionAuth(c)
		}
		return g.requireAuth(c)
	}
	if class == RouteAuthOnly {
		return c.Next()
	}

	decision := g.checker.Check(c.UserContext(), uc.UserID, uc.Mirror)
	if decision.Allowed {
		g.record(class, "allow", decision.Source)
		c.Locals(usercontext.KeySubscriptionSource, decision.Source)
		return c.Next()
	}

	g.record(class, "deny", decision.Source)
	if isAPIPath(c.Path()) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":    "subscription_required",
			"message":  "an active subscription is required",
			"redirect": g.pricingRoute,
		})
	}
	fm := fiber.Map{
		"type":    "error",
		"message": "An active subscription is required to use BudgetFox.",
	}
	flash.WithError(c, fm)
	return c.Redirect(g.pricingRoute, fiber.StatusSeeOther)
}

func (g *SubscriptionGate) record(class RouteClass, decision, source string) {
	if g.recorder != nil {
		g.recorder.RecordGateDecision(string(class), decision, source)
	}
}

package constants

// Static route constants
const (
	PublicRoute   = "/"
	SignInRoute   = "/sign-in"
	SignUpRoute   = "/sign-up"
	PricingRoute  = "/pricing"
	HealthRoute   = "/healthz"
	MetricsRoute  = "/metrics"
	MonitorRoute  = "/monitor"
	DocsRoute     = "/docs/"
	WebhooksRoute = "/webhooks"
	APIRoute      = "/api"
)

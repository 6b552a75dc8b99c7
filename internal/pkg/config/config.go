// Package config builds the immutable runtime configuration once at startup.
// Every component receives the values it needs from here; nothing re-reads the
// process environment at request time.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/constants"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/env"
)

// Config captures runtime configuration values used by the service.
type Config struct {
	AppEnv   string
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Identity IdentityConfig
	Billing  BillingConfig
	Gate     GateConfig
	Mail     MailConfig
	Log      LogConfig

	// SubscriptionOverrideEnabled exposes the manual mirror override endpoint.
	// Development-only bypass for environments providers cannot reach.
	SubscriptionOverrideEnabled bool
}

type ServerConfig struct {
	Host         string
	Port         string
	PublicDomain string
	// Monitor is only mounted when both credentials are set.
	MonitorUser     string
	MonitorPassword string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

type CacheConfig struct {
	Host     string
	Port     string
	Password string
}

type IdentityConfig struct {
	// APIURL is the identity provider backend API base, e.g. https://api.clerk.com/v1.
	APIURL    string
	SecretKey string
	// JWTPublicKeyPEM verifies session tokens (RS256).
	JWTPublicKeyPEM string
	WebhookSecret   string
	SessionCookie   string
	HTTPTimeout     time.Duration
	LookupCacheTTL  time.Duration
}

type BillingConfig struct {
	DodoWebhookSecret         string
	LemonSqueezyWebhookSecret string
	MonthlyProductIDs         []string
	YearlyProductIDs          []string
	PhonePe                   PhonePeConfig
	// AsyncMirrorWrites lets the webhook acknowledge before the mirror write finishes.
	AsyncMirrorWrites  bool
	MirrorWriteTimeout time.Duration
}

type PhonePeConfig struct {
	MerchantID         string
	SaltKey            string
	SaltIndex          string
	APIURL             string
	RedirectURL        string
	CallbackURL        string
	MonthlyAmountPaise int64
	YearlyAmountPaise  int64
	Timeout            time.Duration
}

type GateConfig struct {
	SignInRoute       string
	PricingRoute      string
	PublicPrefixes    []string
	AuthOnlyPrefixes  []string
	ProtectedPrefixes []string
	MirrorTimeout     time.Duration
}

type MailConfig struct {
	Driver         string
	Sender         string
	SendGridAPIKey string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	defaultIdentityAPIURL = "https://api.clerk.com/v1"
	defaultPhonePeAPIURL  = "https://api.phonepe.com/apis/hermes"
)

var (
	defaultPublicPrefixes = []string{
		constants.PublicRoute, constants.SignInRoute, constants.SignUpRoute, constants.WebhooksRoute + "/",
		constants.DocsRoute, constants.MetricsRoute, constants.MonitorRoute, constants.HealthRoute,
	}
	defaultAuthOnlyPrefixes = []string{
		constants.PricingRoute, "/billing", "/payment", constants.APIRoute + "/subscription", constants.APIRoute + "/payments",
	}
	defaultProtectedPrefixes = []string{
		"/dashboard", "/api/dashboard", "/api/income", "/api/budgets", "/api/transactions",
	}
)

// Load reads configuration from the environment (after env.SetupEnvFile),
// applies defaults and returns it by value.
func Load() (Config, error) {
	appEnv := strings.ToLower(env.GetEnv("APP_ENV", "prod"))

	cfg := Config{
		AppEnv: appEnv,
		Server: ServerConfig{
			Host:            env.GetEnv("APP_HOST", "localhost"),
			Port:            env.GetEnv("APP_PORT", "4000"),
			PublicDomain:    strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
			MonitorUser:     env.GetEnv("MONITOR_USER", ""),
			MonitorPassword: env.GetEnv("MONITOR_PASSWORD", ""),
		},
		Database: DatabaseConfig{
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			Name:     env.GetEnv("DB_NAME", ""),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Identity: IdentityConfig{
			APIURL:          strings.TrimRight(env.GetEnv("IDENTITY_API_URL", defaultIdentityAPIURL), "/"),
			SecretKey:       strings.TrimSpace(env.GetEnv("IDENTITY_SECRET_KEY", "")),
			JWTPublicKeyPEM: strings.TrimSpace(env.GetEnv("IDENTITY_JWT_PUBLIC_KEY", "")),
			WebhookSecret:   strings.TrimSpace(env.GetEnv("IDENTITY_WEBHOOK_SECRET", "")),
			SessionCookie:   env.GetEnv("IDENTITY_SESSION_COOKIE", "__session"),
		},
		Billing: BillingConfig{
			DodoWebhookSecret:         strings.TrimSpace(env.GetEnv("DODO_WEBHOOK_SECRET", "")),
			LemonSqueezyWebhookSecret: strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_WEBHOOK_SECRET", "")),
			MonthlyProductIDs:         splitList(env.GetEnv("MONTHLY_PRODUCT_IDS", "")),
			YearlyProductIDs:          splitList(env.GetEnv("YEARLY_PRODUCT_IDS", "")),
			PhonePe: PhonePeConfig{
				MerchantID:  strings.TrimSpace(env.GetEnv("PHONEPE_MERCHANT_ID", "")),
				SaltKey:     strings.TrimSpace(env.GetEnv("PHONEPE_SALT_KEY", "")),
				SaltIndex:   strings.TrimSpace(env.GetEnv("PHONEPE_SALT_INDEX", "1")),
				APIURL:      strings.TrimRight(env.GetEnv("PHONEPE_API_URL", defaultPhonePeAPIURL), "/"),
				RedirectURL: env.GetEnv("PHONEPE_REDIRECT_URL", ""),
				CallbackURL: env.GetEnv("PHONEPE_CALLBACK_URL", ""),
			},
		},
		Gate: GateConfig{
			SignInRoute:       env.GetEnv("SIGN_IN_ROUTE", constants.SignInRoute),
			PricingRoute:      env.GetEnv("PRICING_ROUTE", constants.PricingRoute),
			PublicPrefixes:    listOrDefault(env.GetEnv("GATE_PUBLIC_PREFIXES", ""), defaultPublicPrefixes),
			AuthOnlyPrefixes:  listOrDefault(env.GetEnv("GATE_AUTH_ONLY_PREFIXES", ""), defaultAuthOnlyPrefixes),
			ProtectedPrefixes: listOrDefault(env.GetEnv("GATE_PROTECTED_PREFIXES", ""), defaultProtectedPrefixes),
		},
		Mail: MailConfig{
			Driver:         strings.ToLower(env.GetEnv("MAIL_DRIVER", "none")),
			Sender:         env.GetEnv("MAIL_SENDER", ""),
			SendGridAPIKey: env.GetEnv("SENDGRID_API_KEY", ""),
			SMTPHost:       env.GetEnv("SMTP_HOST", ""),
			SMTPPort:       env.GetEnv("SMTP_PORT", "587"),
			SMTPUsername:   env.GetEnv("SMTP_USERNAME", ""),
			SMTPPassword:   env.GetEnv("SMTP_PASSWORD", ""),
		},
		Log: LogConfig{
			Level:  env.GetEnv("LOG_LEVEL", "info"),
			Format: env.GetEnv("LOG_FORMAT", "json"),
		},
	}

	var err error
	if cfg.Identity.HTTPTimeout, err = durationMS("IDENTITY_HTTP_TIMEOUT_MS", 5000); err != nil {
		return Config{}, err
	}
	if cfg.Identity.LookupCacheTTL, err = durationMS("IDENTITY_LOOKUP_CACHE_TTL_MS", 10*60*1000); err != nil {
		return Config{}, err
	}
	if cfg.Gate.MirrorTimeout, err = durationMS("GATE_MIRROR_TIMEOUT_MS", 2000); err != nil {
		return Config{}, err
	}
	if cfg.Billing.PhonePe.Timeout, err = durationMS("PHONEPE_TIMEOUT_MS", 10000); err != nil {
		return Config{}, err
	}
	if cfg.Billing.MirrorWriteTimeout, err = durationMS("MIRROR_WRITE_TIMEOUT_MS", 10000); err != nil {
		return Config{}, err
	}
	if cfg.Billing.PhonePe.MonthlyAmountPaise, err = int64Value("PHONEPE_MONTHLY_AMOUNT_PAISE", 19900); err != nil {
		return Config{}, err
	}
	if cfg.Billing.PhonePe.YearlyAmountPaise, err = int64Value("PHONEPE_YEARLY_AMOUNT_PAISE", 199900); err != nil {
		return Config{}, err
	}
	if cfg.Server.RateLimitWindow, err = durationMS("RATE_LIMIT_WINDOW_MS", 60*1000); err != nil {
		return Config{}, err
	}
	rateLimitMax, err := int64Value("RATE_LIMIT_MAX", 120)
	if err != nil {
		return Config{}, err
	}
	cfg.Server.RateLimitMax = int(rateLimitMax)
	if cfg.Billing.AsyncMirrorWrites, err = boolValue("ASYNC_MIRROR_WRITES", true); err != nil {
		return Config{}, err
	}
	if cfg.SubscriptionOverrideEnabled, err = boolValue("SUBSCRIPTION_OVERRIDE_ENABLED", cfg.IsDev()); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IsDev reports whether the service runs in development mode.
func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// ListenAddress is the host:port pair fiber listens on.
func (c Config) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// PlanForProducts tries each id in order (variant before product) and returns
// the first configured match, falling back to monthly.
func (b BillingConfig) PlanForProducts(ids ...string) string {
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		for _, yearly := range b.YearlyProductIDs {
			if id == yearly {
				return "yearly"
			}
		}
		for _, monthly := range b.MonthlyProductIDs {
			if id == monthly {
				return "monthly"
			}
		}
	}
	return "monthly"
}

// AmountForPlan returns the PhonePe charge for a plan, in paise.
func (p PhonePeConfig) AmountForPlan(plan string) int64 {
	if plan == "yearly" {
		return p.YearlyAmountPaise
	}
	return p.MonthlyAmountPaise
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func listOrDefault(raw string, def []string) []string {
	if list := splitList(raw); len(list) > 0 {
		return list
	}
	return append([]string(nil), def...)
}

func durationMS(key string, def int64) (time.Duration, error) {
	v, err := int64Value(key, def)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return time.Duration(v) * time.Millisecond, nil
}

func int64Value(key string, def int64) (int64, error) {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func boolValue(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

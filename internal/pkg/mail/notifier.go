package mail

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/rs/zerolog/log"
)

// Mailer delivers one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewMailer picks the configured driver. "none" returns nil.
func NewMailer(cfg config.MailConfig) Mailer {
	switch cfg.Driver {
	case "smtp":
		return NewSMTPMailer(cfg)
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			log.Warn().Msg("MAIL_DRIVER=sendgrid without SENDGRID_API_KEY, mail disabled")
			return nil
		}
		return NewSendGridMailer(cfg)
	default:
		return nil
	}
}

// Notifier tells customers about subscription status changes.
type Notifier struct {
	mailer      Mailer
	appURL      string
	pricingPath string
}

func NewNotifier(mailer Mailer, appURL, pricingPath string) *Notifier {
	return &Notifier{mailer: mailer, appURL: strings.TrimRight(appURL, "/"), pricingPath: pricingPath}
}

func (n *Notifier) NotifySubscriptionStatus(ctx context.Context, email, status, plan string) error {
	if n == nil || n.mailer == nil || email == "" {
		return nil
	}
	subject, body, ok := n.render(status, plan)
	if !ok {
		return nil
	}
	return n.mailer.Send(ctx, email, subject, body)
}

func (n *Notifier) render(status, plan string) (string, string, bool) {
	pricing := html.EscapeString(n.appURL + n.pricingPath)
	planName := html.EscapeString(plan)
	switch status {
	case "active":
		return "Your BudgetFox subscription is active",
			fmt.Sprintf("<p>Thanks for subscribing! Your %s plan is now active.</p>", planName), true
	case "trialing":
		return "Your BudgetFox trial has started",
			fmt.Sprintf("<p>Your %s trial is running. Enjoy BudgetFox!</p>", planName), true
	case "on_hold":
		return "Action needed: your BudgetFox payment is on hold",
			fmt.Sprintf(`<p>We could not renew your subscription. Please update your payment details: <a href="%s">%s</a></p>`, pricing, pricing), true
	case "failed":
		return "Your BudgetFox payment failed",
			fmt.Sprintf(`<p>Your last payment failed. You can subscribe again at <a href="%s">%s</a>.</p>`, pricing, pricing), true
	case "cancelled", "expired":
		return "Your BudgetFox subscription has ended",
			fmt.Sprintf(`<p>Your subscription is %s. We would love to have you back: <a href="%s">%s</a></p>`, html.EscapeString(status), pricing, pricing), true
	default:
		return "", "", false
	}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(body string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(body, ""))
}

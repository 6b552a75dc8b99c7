package mail

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer sends emails through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	sender string
}

func NewSendGridMailer(cfg config.MailConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		sender: cfg.Sender,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	from := sgmail.NewEmail("BudgetFox", m.sender)
	recipient := sgmail.NewEmail("", to)
	message := sgmail.NewSingleEmail(from, subject, recipient, stripTags(body), body)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", response.StatusCode)
	}
	log.Debug().Int("status", response.StatusCode).Msg("email sent via SendGrid")
	return nil
}

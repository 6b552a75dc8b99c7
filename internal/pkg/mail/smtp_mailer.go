package mail

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/rs/zerolog/log"
)

// SMTPMailer sends emails via SMTP
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	sender   string
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	sender := cfg.Sender
	if sender == "" {
		sender = "no-reply@localhost"
		log.Warn().Str("sender", sender).Msg("MAIL_SENDER not set, using default sender")
	}
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		sender:   sender,
	}
}

// Send delivers one HTML message. net/smtp has no context support, the
// context is only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.username != "" && m.password != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	msg := buildMessage(m.sender, to, subject, body)

	err := smtp.SendMail(addr, auth, m.sender, []string{to}, msg)
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("SMTP send error")
		return err
	}
	log.Debug().Str("addr", addr).Msg("email sent via SMTP")
	return nil
}

func buildMessage(sender, to, subject, body string) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)
}

package mail

import (
	"context"
	"strings"
	"testing"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	to, subject, body string
	calls             int
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.calls++
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func TestNotifySubscriptionStatus(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewNotifier(mailer, "https://app.example.com/", "/pricing")

	require.NoError(t, n.NotifySubscriptionStatus(context.Background(), "jane@example.com", "on_hold", "monthly"))
	assert.Equal(t, 1, mailer.calls)
	assert.Equal(t, "jane@example.com", mailer.to)
	assert.Contains(t, mailer.subject, "on hold")
	assert.Contains(t, mailer.body, "https://app.example.com/pricing")

	require.NoError(t, n.NotifySubscriptionStatus(context.Background(), "jane@example.com", "inactive", "none"))
	assert.Equal(t, 1, mailer.calls, "no mail for statuses without a template")

	require.NoError(t, n.NotifySubscriptionStatus(context.Background(), "", "active", "monthly"))
	assert.Equal(t, 1, mailer.calls)
}

func TestNotifierWithoutMailer(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.NotifySubscriptionStatus(context.Background(), "a@example.com", "active", "monthly"))
	assert.NoError(t, NewNotifier(nil, "", "/pricing").NotifySubscriptionStatus(context.Background(), "a@example.com", "active", "monthly"))
}

func TestNewMailer(t *testing.T) {
	assert.Nil(t, NewMailer(config.MailConfig{Driver: "none"}))
	assert.Nil(t, NewMailer(config.MailConfig{Driver: "sendgrid"}))
	assert.IsType(t, &SendGridMailer{}, NewMailer(config.MailConfig{Driver: "sendgrid", SendGridAPIKey: "SG.x"}))
	assert.IsType(t, &SMTPMailer{}, NewMailer(config.MailConfig{Driver: "smtp", Sender: "billing@example.com"}))
}

func TestBuildMessageAndStripTags(t *testing.T) {
	msg := string(buildMessage("from@example.com", "to@example.com", "Hi", "<p>Body</p>"))
	assert.True(t, strings.HasPrefix(msg, "From: from@example.com\r\nTo: to@example.com\r\nSubject: Hi\r\n"))
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.Equal(t, "Fish & Chips", stripTags("<p>Fish &amp; Chips</p>"))
}

package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunClient is the part of mailgun.Mailgun used here.
type MailgunClient interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// MailgunMailer delivers messages through the Mailgun API.
type MailgunMailer struct {
	client MailgunClient
	from   string
}

// NewMailgunMailer creates a Mailgun sender for domain.
func NewMailgunMailer(domain, apiKey, from string) (*MailgunMailer, error) {
	if domain == "" || apiKey == "" || from == "" {
		return nil, errors.New("invalid Mailgun configuration")
	}
	return NewMailgunMailerWithClient(mailgun.NewMailgun(domain, apiKey), from), nil
}

func NewMailgunMailerWithClient(client MailgunClient, from string) *MailgunMailer {
	return &MailgunMailer{client: client, from: from}
}

func (m *MailgunMailer) Send(ctx context.Context, msg Message) error {
	message := m.client.NewMessage(m.from, msg.Subject, msg.Text, msg.To)
	if _, _, err := m.client.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	return nil
}

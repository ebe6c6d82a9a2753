package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridClient is the part of *sendgrid.Client used here.
type SendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer delivers messages through the SendGrid v3 API.
type SendGridMailer struct {
	client   SendGridClient
	from     string
	fromName string
}

// NewSendGridMailer creates a SendGrid sender for apiKey.
func NewSendGridMailer(apiKey, from, fromName string) (*SendGridMailer, error) {
	if apiKey == "" || from == "" {
		return nil, errors.New("invalid SendGrid configuration")
	}
	return NewSendGridMailerWithClient(sendgrid.NewSendClient(apiKey), from, fromName), nil
}

func NewSendGridMailerWithClient(client SendGridClient, from, fromName string) *SendGridMailer {
	return &SendGridMailer{client: client, from: from, fromName: fromName}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	message := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Text,
		"",
	)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid: unexpected status code %d", resp.StatusCode)
	}
	return nil
}

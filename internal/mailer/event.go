package mailer

import (
	"context"

	"github.com/elparchetipk/asiste-app-be-fast/internal/event"
)

// EmailPublisher is implemented by *event.Producer.
type EmailPublisher interface {
	PublishEmail(ctx context.Context, n event.EmailNotification) error
}

// EventMailer hands emails to the notification service over Kafka instead of
// delivering them itself.
type EventMailer struct {
	publisher EmailPublisher
	resetURL  string
}

func NewEventMailer(publisher EmailPublisher, passwordResetURL string) *EventMailer {
	return &EventMailer{publisher: publisher, resetURL: passwordResetURL}
}

func (m *EventMailer) SendPasswordReset(ctx context.Context, email, token, name string) error {
	return m.publisher.PublishEmail(ctx, event.EmailNotification{
		Template: TemplatePasswordReset,
		To:       email,
		Name:     name,
		Params:   map[string]string{"reset_url": ResetLink(m.resetURL, token)},
	})
}

func (m *EventMailer) SendWelcome(ctx context.Context, email, name, tempPassword string) error {
	n := event.EmailNotification{Template: TemplateWelcome, To: email, Name: name}
	if tempPassword != "" {
		n.Params = map[string]string{"temporary_password": tempPassword}
	}
	return m.publisher.PublishEmail(ctx, n)
}

func (m *EventMailer) SendPasswordChanged(ctx context.Context, email, name string) error {
	return m.publisher.PublishEmail(ctx, event.EmailNotification{
		Template: TemplatePasswordChanged,
		To:       email,
		Name:     name,
	})
}

func (m *EventMailer) SendDeactivationNotice(ctx context.Context, email, name, reason string) error {
	n := event.EmailNotification{Template: TemplateDeactivation, To: email, Name: name}
	if reason != "" {
		n.Params = map[string]string{"reason": reason}
	}
	return m.publisher.PublishEmail(ctx, n)
}

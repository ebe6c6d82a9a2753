package mailer

import (
	"context"
	"log/slog"
)

// LogMailer is a Sender that only logs. Used in development and when no
// provider is configured. The body is never logged.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email not delivered, log mailer in use",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

package mailer

import (
	"context"
	"log/slog"

	"github.com/elparchetipk/asiste-app-be-fast/pkg/breaker"
)

// Breaker stops calling a failing provider until it recovers.
type Breaker struct {
	next Sender
	cb   *breaker.Breaker[struct{}]
}

// NewBreaker wraps next with a circuit breaker configured by cfg.
func NewBreaker(next Sender, cfg breaker.Config, logger *slog.Logger) *Breaker {
	return &Breaker{next: next, cb: breaker.New[struct{}](cfg, logger)}
}

func (b *Breaker) Send(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, msg)
	})
	return err
}

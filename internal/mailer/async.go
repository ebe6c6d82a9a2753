package mailer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSendTimeout bounds a single background send.
const DefaultSendTimeout = 30 * time.Second

// Async sends mail in background goroutines so that a slow provider never
// holds up the request. Errors are logged. Calls made after Close are
// dropped.
type Async struct {
	next    Mailer
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync wraps next. A zero timeout means DefaultSendTimeout.
func NewAsync(next Mailer, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Async{next: next, logger: logger, timeout: timeout}
}

func (a *Async) SendPasswordReset(ctx context.Context, email, token, name string) error {
	a.goSend(ctx, "password_reset", email, func(ctx context.Context) error {
		return a.next.SendPasswordReset(ctx, email, token, name)
	})
	return nil
}

func (a *Async) SendWelcome(ctx context.Context, email, name, tempPassword string) error {
	a.goSend(ctx, "welcome", email, func(ctx context.Context) error {
		return a.next.SendWelcome(ctx, email, name, tempPassword)
	})
	return nil
}

func (a *Async) SendPasswordChanged(ctx context.Context, email, name string) error {
	a.goSend(ctx, "password_changed", email, func(ctx context.Context) error {
		return a.next.SendPasswordChanged(ctx, email, name)
	})
	return nil
}

func (a *Async) SendDeactivationNotice(ctx context.Context, email, name, reason string) error {
	a.goSend(ctx, "deactivation", email, func(ctx context.Context) error {
		return a.next.SendDeactivationNotice(ctx, email, name, reason)
	})
	return nil
}

func (a *Async) goSend(ctx context.Context, kind, to string, send func(context.Context) error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.WarnContext(ctx, "mailer closed, email dropped", slog.String("kind", kind), slog.String("to", to))
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	// The request context is canceled when the handler returns; keep its
	// values (trace, correlation id) but not its deadline.
	bg := context.WithoutCancel(ctx)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(bg, a.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			a.logger.ErrorContext(ctx, "failed to send email",
				slog.String("kind", kind),
				slog.String("to", to),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until every in-flight send has finished.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Close stops accepting sends and waits for in-flight ones, up to ctx.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

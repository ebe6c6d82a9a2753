package breaker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

var errDownstream = errors.New("provider unavailable")

func fail(context.Context) (string, error) { return "", errDownstream }
func ok(context.Context) (string, error)   { return "sent", nil }

func TestBreaker_PassesThroughWhenClosed(t *testing.T) {
	b := New[string](testConfig("closed"), testLogger())

	got, err := b.Execute(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, "sent", got)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_TripsAfterFailureRatio(t *testing.T) {
	b := New[string](testConfig("trip"), testLogger())

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), fail)
		assert.ErrorIs(t, err, errDownstream)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	called := false
	_, err := b.Execute(context.Background(), func(context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := New[string](testConfig("recover"), testLogger())
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), fail)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, b.State())

	_, err := b.Execute(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_CanceledContextDoesNotTrip(t *testing.T) {
	b := New[string](testConfig("canceled"), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := b.Execute(ctx, func(ctx context.Context) (string, error) { return "", ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

package password

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

var hashDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "password_hash_duration_seconds",
		Help:    "Time spent hashing or verifying passwords, excluding queueing",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1},
	},
	[]string{"op"},
)

// Pool bounds how many hash or verify calls run at once. Callers queue on a
// weighted semaphore and give up when their context ends.
type Pool struct {
	hasher Hasher
	sem    *semaphore.Weighted
}

var _ Hasher = (*Pool)(nil)

// NewPool wraps h allowing at most limit concurrent operations.
func NewPool(h Hasher, limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{hasher: h, sem: semaphore.NewWeighted(int64(limit))}
}

func (p *Pool) Hash(ctx context.Context, plain string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hash slot: %w", err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	defer func() { hashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds()) }()
	return p.hasher.Hash(ctx, plain)
}

func (p *Pool) Verify(ctx context.Context, plain, hash string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for verify slot: %w", err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	defer func() { hashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds()) }()
	return p.hasher.Verify(ctx, plain, hash)
}

func (p *Pool) IsStrong(plain string) bool {
	return p.hasher.IsStrong(plain)
}

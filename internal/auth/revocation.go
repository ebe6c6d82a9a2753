package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore is a keyed store whose entries expire after a TTL. It
// holds token blacklist entries and per-user revocation cutoffs.
type RevocationStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ok=false when key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// RedisRevocationStore keeps entries in Redis so every instance sees the
// same revocations.
type RedisRevocationStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisRevocationStore stores keys under keyPrefix.
func NewRedisRevocationStore(client redis.UniversalClient, keyPrefix string) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisRevocationStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisRevocationStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// sweepEvery is how many Puts happen between sweeps of expired entries.
const sweepEvery = 256

// MemoryRevocationStore is a process-local RevocationStore for single
// instance deployments and tests.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	puts    int
	now     func() time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryRevocationStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}

	s.puts++
	if s.puts%sweepEvery == 0 {
		for k, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, k)
			}
		}
	}
	return nil
}

func (s *MemoryRevocationStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (s *MemoryRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

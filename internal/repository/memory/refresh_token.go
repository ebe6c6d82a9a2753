package memory

import (
	"context"
	"sync"
	"time"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// an in-memory map keyed by token hash.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domain.RefreshToken
}

// NewRefreshTokenRepository creates an empty in-memory refresh token store.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: make(map[string]domain.RefreshToken)}
}

// GetByHash returns a copy of the token stored under tokenHash.
func (r *RefreshTokenRepository) GetByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	t.LastUsedAt = clonePtr(t.LastUsedAt)
	return &t, nil
}

// Save stores a copy of t keyed by its hash.
func (r *RefreshTokenRepository) Save(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[t.TokenHash] = cloneToken(t)
	return nil
}

// Update persists the used and active state of t.
func (r *RefreshTokenRepository) Update(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash, ok := r.hashByID(t.ID)
	if !ok {
		return apperrors.NotFound("refresh token", t.ID)
	}
	stored := r.tokens[hash]
	stored.LastUsedAt = clonePtr(t.LastUsedAt)
	stored.IsActive = t.IsActive
	r.tokens[hash] = stored
	return nil
}

// Delete removes a token. Deleting an unknown token is not an error.
func (r *RefreshTokenRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hash, ok := r.hashByID(id); ok {
		delete(r.tokens, hash)
	}
	return nil
}

// RevokeAllByUser deactivates the user's active tokens, keeping exceptID.
func (r *RefreshTokenRepository) RevokeAllByUser(_ context.Context, userID, exceptID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, t := range r.tokens {
		if t.UserID != userID || !t.IsActive || (exceptID != "" && t.ID == exceptID) {
			continue
		}
		t.IsActive = false
		r.tokens[hash] = t
		n++
	}
	return n, nil
}

// Rotate checks and consumes used under the lock, so concurrent rotations of
// the same token see exactly one success.
func (r *RefreshTokenRepository) Rotate(_ context.Context, used, next *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash, ok := r.hashByID(used.ID)
	if !ok || !r.tokens[hash].IsActive {
		return domain.InvalidToken("refresh token has already been used")
	}

	stored := r.tokens[hash]
	stored.LastUsedAt = clonePtr(used.LastUsedAt)
	stored.IsActive = false
	r.tokens[hash] = stored
	r.tokens[next.TokenHash] = cloneToken(next)
	return nil
}

// DeleteExpired removes tokens that expired before the given time.
func (r *RefreshTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, t := range r.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.tokens, hash)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokenRepository) hashByID(id string) (string, bool) {
	for hash, t := range r.tokens {
		if t.ID == id {
			return hash, true
		}
	}
	return "", false
}

func cloneToken(t *domain.RefreshToken) domain.RefreshToken {
	c := *t
	c.LastUsedAt = clonePtr(t.LastUsedAt)
	return c
}

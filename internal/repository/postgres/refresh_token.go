package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const insertRefreshToken = `
	INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, device_info, created_at, last_used_at, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func insertArgs(t *domain.RefreshToken) []any {
	return []any{t.ID, t.TokenHash, t.UserID, t.ExpiresAt, t.DeviceInfo, t.CreatedAt, t.LastUsedAt, t.IsActive}
}

// GetByHash retrieves a refresh token record by its hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, token_hash, user_id, expires_at, device_info, created_at, last_used_at, is_active
		FROM refresh_tokens
		WHERE token_hash = $1`

	var t domain.RefreshToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.TokenHash,
		&t.UserID,
		&t.ExpiresAt,
		&t.DeviceInfo,
		&t.CreatedAt,
		&t.LastUsedAt,
		&t.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}

// Save inserts a new refresh token record.
func (r *RefreshTokenRepository) Save(ctx context.Context, t *domain.RefreshToken) error {
	if _, err := r.db.Exec(ctx, insertRefreshToken, insertArgs(t)...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Update persists the mutable state of t.
func (r *RefreshTokenRepository) Update(ctx context.Context, t *domain.RefreshToken) error {
	query := `UPDATE refresh_tokens SET last_used_at = $1, is_active = $2 WHERE id = $3`

	ct, err := r.db.Exec(ctx, query, t.LastUsedAt, t.IsActive, t.ID)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("refresh token", t.ID)
	}
	return nil
}

// Delete removes a token. Deleting an unknown token is not an error.
func (r *RefreshTokenRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// RevokeAllByUser deactivates the user's active tokens, keeping exceptID.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID, exceptID string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_active = false
		WHERE user_id = $1 AND is_active = true AND id::text <> $2`

	ct, err := r.db.Exec(ctx, query, userID, exceptID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens by user: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Rotate marks used as consumed and inserts next in one transaction. The
// update only matches while used is still active, so of two concurrent
// rotations of the same token exactly one commits.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, used, next *domain.RefreshToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET last_used_at = $1, is_active = false WHERE id = $2 AND is_active = true`,
		used.LastUsedAt, used.ID,
	)
	if err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.InvalidToken("refresh token has already been used")
	}

	if _, err := tx.Exec(ctx, insertRefreshToken, insertArgs(next)...); err != nil {
		return fmt.Errorf("insert rotated refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeleteExpired purges tokens that expired before the given time.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

package repository

import (
	"context"
	"time"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
// Soft-deleted users are invisible to every read.
type UserRepository interface {
	// Create inserts a new user. Duplicate email or document number fails
	// with domain.ErrUserAlreadyExists.
	Create(ctx context.Context, user *domain.User) error

	// GetByID, GetByEmail, GetByDocumentNumber and GetByResetToken return
	// apperrors.ErrNotFound when no live user matches.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByDocumentNumber(ctx context.Context, number string) (*domain.User, error)
	GetByResetToken(ctx context.Context, tokenHash string) (*domain.User, error)

	// Update overwrites every mutable column. Concurrent updates are last
	// writer wins.
	Update(ctx context.Context, user *domain.User) error

	// Delete soft-deletes the user.
	Delete(ctx context.Context, id string) error

	List(ctx context.Context, filter domain.UserFilter, offset, limit int) ([]domain.User, error)
	Count(ctx context.Context, filter domain.UserFilter) (int, error)

	// ExistsByEmail and ExistsByDocumentNumber ignore the user excludeID,
	// so updates can re-check uniqueness against everyone else.
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	ExistsByDocumentNumber(ctx context.Context, number, excludeID string) (bool, error)
}

// RefreshTokenRepository defines the interface for refresh token persistence.
type RefreshTokenRepository interface {
	// GetByHash returns apperrors.ErrNotFound for unknown tokens.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	Save(ctx context.Context, token *domain.RefreshToken) error
	Update(ctx context.Context, token *domain.RefreshToken) error
	Delete(ctx context.Context, id string) error

	// RevokeAllByUser deactivates every active token of userID except the
	// one with ID exceptID, and returns how many were deactivated. An empty
	// exceptID spares none.
	RevokeAllByUser(ctx context.Context, userID, exceptID string) (int64, error)

	// Rotate atomically persists the used state of used and stores next.
	// It fails with domain.ErrInvalidToken when used was already consumed
	// by a concurrent rotation.
	Rotate(ctx context.Context, used, next *domain.RefreshToken) error

	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Package service holds the user service use cases.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elparchetipk/asiste-app-be-fast/internal/auth"
	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/mailer"
	"github.com/elparchetipk/asiste-app-be-fast/internal/password"
	"github.com/elparchetipk/asiste-app-be-fast/internal/repository"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

// TokenIssuer mints, decodes and revokes bearer tokens. *auth.JWTManager
// implements it.
type TokenIssuer interface {
	CreateAccessToken(userID, role, sessionID string, ttl time.Duration) (string, error)
	CreateRefreshToken(userID string) (string, error)
	DecodeToken(token string) (*auth.Claims, error)
	RevokeToken(ctx context.Context, token string) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
	RevokeAllUserTokens(ctx context.Context, userID, keepToken string) error
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// EventPublisher publishes user domain events. *event.Producer implements it.
type EventPublisher interface {
	PublishUserCreated(ctx context.Context, user *domain.User) error
	PublishUserUpdated(ctx context.Context, user *domain.User) error
	PublishUserDeactivated(ctx context.Context, user *domain.User, reason string) error
	PublishPasswordChanged(ctx context.Context, user *domain.User, method string) error
}

// Dependencies are the collaborators shared by AuthService and UserService.
type Dependencies struct {
	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
	Tokens        TokenIssuer
	Hasher        password.Hasher
	// Policy only words WeakPassword errors; Hasher.IsStrong decides.
	Policy password.Policy
	Mailer mailer.Mailer
	Events EventPublisher
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// getUser loads a live user, translating a missing row into UserNotFound.
func (d *Dependencies) getUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := d.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.UserNotFound(id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// checkNewPassword applies the strength policy and rejects reuse of the
// current password.
func (d *Dependencies) checkNewPassword(ctx context.Context, user *domain.User, plain string) error {
	if !d.Hasher.IsStrong(plain) {
		msg := "password does not meet the strength policy"
		if err := d.Policy.Check(plain); err != nil {
			msg = err.Error()
		}
		return domain.WeakPassword(msg)
	}

	same, err := d.Hasher.Verify(ctx, plain, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("compare with current password: %w", err)
	}
	if same {
		return domain.InvalidPassword("new password must be different from the current password")
	}
	return nil
}

// setPassword hashes plain and stores it on user.
func (d *Dependencies) setPassword(ctx context.Context, user *domain.User, plain string) error {
	hash, err := d.Hasher.Hash(ctx, plain)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.SetPassword(hash, d.now())
	return nil
}

// revokeSessions deactivates the user's refresh tokens and access tokens.
// keepAccess and keepRefresh name the session that survives; either may be
// empty. The surviving refresh token is the one given, or else the one the
// access token was issued with.
func (d *Dependencies) revokeSessions(ctx context.Context, userID, keepAccess, keepRefresh string) error {
	keepID, err := d.sessionID(ctx, userID, keepAccess, keepRefresh)
	if err != nil {
		return err
	}

	n, err := d.RefreshTokens.RevokeAllByUser(ctx, userID, keepID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	if err := d.Tokens.RevokeAllUserTokens(ctx, userID, keepAccess); err != nil {
		return fmt.Errorf("revoke access tokens: %w", err)
	}

	d.Logger.InfoContext(ctx, "user sessions revoked",
		slog.String("user_id", userID),
		slog.Int64("revoked_count", n),
		slog.Bool("kept_current", keepAccess != "" || keepRefresh != ""),
	)
	return nil
}

// sessionID resolves the refresh token record of the caller's session.
// Tokens that belong to another user resolve to no session.
func (d *Dependencies) sessionID(ctx context.Context, userID, accessToken, refreshToken string) (string, error) {
	if refreshToken != "" {
		record, err := d.RefreshTokens.GetByHash(ctx, auth.Fingerprint(refreshToken))
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			return "", fmt.Errorf("get refresh token: %w", err)
		case record.UserID == userID:
			return record.ID, nil
		}
	}
	if accessToken != "" {
		if claims, err := d.Tokens.DecodeToken(accessToken); err == nil && claims.UserID() == userID {
			return claims.SessionID, nil
		}
	}
	return "", nil
}

// logMailError records a failed best-effort email.
func (d *Dependencies) logMailError(ctx context.Context, kind, userID string, err error) {
	if err == nil {
		return
	}
	d.Logger.ErrorContext(ctx, "failed to send email",
		slog.String("kind", kind),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}

// logEventError records a failed best-effort domain event.
func (d *Dependencies) logEventError(ctx context.Context, topic, userID string, err error) {
	if err == nil {
		return
	}
	d.Logger.ErrorContext(ctx, "failed to publish event",
		slog.String("event", topic),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}

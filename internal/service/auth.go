package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/elparchetipk/asiste-app-be-fast/internal/auth"
	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/event"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

// Reset tokens are 43 symbols from a 64-symbol alphabet (258 bits).
const (
	resetTokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"
	resetTokenLength   = 43
)

// DefaultResetTokenTTL is how long a password reset token stays usable.
const DefaultResetTokenTTL = 24 * time.Hour

// AuthConfig tunes AuthService.
type AuthConfig struct {
	// IssueRefreshOnLogin makes Login return a refresh token.
	IssueRefreshOnLogin bool
	ResetTokenTTL       time.Duration
}

// AuthService implements login, logout, token validation, refresh token
// rotation and the password reset flows.
type AuthService struct {
	Dependencies
	cfg AuthConfig

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service.
func NewAuthService(deps Dependencies, cfg AuthConfig) *AuthService {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}
	return &AuthService{Dependencies: deps, cfg: cfg}
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
}

// Login authenticates a user by email and password. Every credential failure
// returns the same error so callers cannot tell which check failed.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.TokenResponse, error) {
	invalid := domain.AuthenticationFailed(domain.MsgInvalidCredentials)

	email, err := domain.ParseEmail(input.Email)
	if err != nil {
		recordAuth("login", "invalid_credentials")
		return nil, invalid
	}

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user by email: %w", err)
		}
		s.burnVerify(ctx, input.Password)
		recordAuth("login", "invalid_credentials")
		return nil, invalid
	}

	if !user.IsActive {
		recordAuth("login", "inactive")
		return nil, domain.UserInactive()
	}

	ok, err := s.Hasher.Verify(ctx, input.Password, user.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.Logger.ErrorContext(ctx, "password verification failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	if !ok {
		recordAuth("login", "invalid_credentials")
		return nil, invalid
	}

	now := s.now()
	user.RecordLogin(now)
	if err := s.Users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	var sessionID string
	if s.cfg.IssueRefreshOnLogin {
		sessionID = uuid.NewString()
	}
	accessToken, err := s.Tokens.CreateAccessToken(user.ID, user.Role, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	resp := &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   domain.TokenTypeBearer,
		ExpiresIn:   int64(s.Tokens.AccessTTL().Seconds()),
		User:        user.Snapshot(),
	}

	if s.cfg.IssueRefreshOnLogin {
		raw, record, err := s.newRefreshToken(sessionID, user.ID, input.DeviceInfo, now)
		if err != nil {
			return nil, err
		}
		if err := s.RefreshTokens.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("save refresh token: %w", err)
		}
		resp.RefreshToken = raw
	}

	recordAuth("login", "success")
	s.Logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return resp, nil
}

// burnVerify runs one verification against a throwaway hash so that an
// unknown email costs as much as a wrong password.
func (s *AuthService) burnVerify(ctx context.Context, plain string) {
	s.dummyOnce.Do(func() {
		if h, err := s.Hasher.Hash(ctx, uuid.NewString()); err == nil {
			s.dummyHash = h
		}
	})
	if s.dummyHash != "" {
		_, _ = s.Hasher.Verify(ctx, plain, s.dummyHash)
	}
}

// LogoutInput holds the tokens of the session being closed.
type LogoutInput struct {
	AccessToken  string
	RefreshToken string
}

// Logout revokes the access token and, when given, deactivates the refresh
// token of the same user. Repeating a logout is not an error.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	if err := s.Tokens.RevokeToken(ctx, input.AccessToken); err != nil {
		return err
	}

	var userID string
	if claims, err := s.Tokens.DecodeToken(input.AccessToken); err == nil {
		userID = claims.UserID()
	}

	if input.RefreshToken != "" {
		record, err := s.RefreshTokens.GetByHash(ctx, auth.Fingerprint(input.RefreshToken))
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			return fmt.Errorf("get refresh token: %w", err)
		case record.IsActive && (userID == "" || record.UserID == userID):
			record.IsActive = false
			if err := s.RefreshTokens.Update(ctx, record); err != nil {
				return fmt.Errorf("deactivate refresh token: %w", err)
			}
		}
	}

	recordAuth("logout", "success")
	s.Logger.InfoContext(ctx, "user logged out", slog.String("user_id", userID))
	return nil
}

// LogoutAll ends every session of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.revokeSessions(ctx, userID, "", ""); err != nil {
		return err
	}
	recordAuth("logout_all", "success")
	return nil
}

// ValidateToken resolves a bearer access token to the user it was issued to.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.UserSnapshot, error) {
	claims, err := s.Tokens.DecodeToken(token)
	if err != nil {
		return nil, domain.AuthenticationFailed("invalid or expired token")
	}

	revoked, err := s.Tokens.IsTokenRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, domain.AuthenticationFailed("token has been revoked")
	}

	if claims.Type != auth.TokenTypeAccess {
		return nil, domain.AuthenticationFailed("invalid token type")
	}

	user, err := s.getUser(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.UserInactive()
	}
	return user.Snapshot(), nil
}

// ForgotPassword emails a reset token to the owner of email. It succeeds
// without doing anything when no active user has that email, and never
// reports a failure to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	addr, err := domain.ParseEmail(email)
	if err != nil {
		return nil
	}

	user, err := s.Users.GetByEmail(ctx, addr)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.Logger.ErrorContext(ctx, "password reset lookup failed", slog.String("error", err.Error()))
		}
		return nil
	}
	if !user.IsActive {
		return nil
	}

	token, err := gonanoid.Generate(resetTokenAlphabet, resetTokenLength)
	if err != nil {
		s.Logger.ErrorContext(ctx, "failed to generate reset token", slog.String("error", err.Error()))
		return nil
	}

	now := s.now()
	user.SetResetToken(auth.Fingerprint(token), now.Add(s.cfg.ResetTokenTTL), now)
	if err := s.Users.Update(ctx, user); err != nil {
		s.Logger.ErrorContext(ctx, "failed to store reset token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.logMailError(ctx, "password_reset", user.ID, s.Mailer.SendPasswordReset(ctx, user.Email, token, user.FullName()))

	recordAuth("forgot_password", "sent")
	s.Logger.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPasswordInput holds the emailed reset token and the new password.
type ResetPasswordInput struct {
	Token       string
	NewPassword string
}

// ResetPassword sets a new password using a reset token and ends every
// session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	invalid := domain.InvalidToken("invalid or expired reset token")

	user, err := s.Users.GetByResetToken(ctx, auth.Fingerprint(input.Token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			recordAuth("reset_password", "invalid_token")
			return invalid
		}
		return fmt.Errorf("get user by reset token: %w", err)
	}

	if user.ResetTokenExpired(s.now()) {
		recordAuth("reset_password", "expired_token")
		return invalid
	}

	if err := s.checkNewPassword(ctx, user, input.NewPassword); err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, input.NewPassword); err != nil {
		return err
	}
	user.ClearResetToken(s.now())
	if err := s.Users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if err := s.revokeSessions(ctx, user.ID, "", ""); err != nil {
		return err
	}

	s.logEventError(ctx, event.TopicUserPasswordChanged, user.ID,
		s.Events.PublishPasswordChanged(ctx, user, event.PasswordChangedByReset))
	s.logMailError(ctx, "password_changed", user.ID, s.Mailer.SendPasswordChanged(ctx, user.Email, user.FullName()))

	recordAuth("reset_password", "success")
	s.Logger.InfoContext(ctx, "password reset", slog.String("user_id", user.ID))
	return nil
}

// ForceChangePasswordInput identifies the session changing its password.
type ForceChangePasswordInput struct {
	UserID       string
	NewPassword  string
	AccessToken  string
	RefreshToken string
}

// ForceChangePassword replaces the password of a user flagged to change it.
// Every other session is ended; the one making the request survives.
func (s *AuthService) ForceChangePassword(ctx context.Context, input ForceChangePasswordInput) error {
	user, err := s.getUser(ctx, input.UserID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return domain.UserInactive()
	}
	if !user.MustChangePassword {
		return domain.AuthenticationFailed("password change is not required for this user")
	}

	if err := s.checkNewPassword(ctx, user, input.NewPassword); err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, input.NewPassword); err != nil {
		return err
	}
	if err := s.Users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if err := s.revokeSessions(ctx, user.ID, input.AccessToken, input.RefreshToken); err != nil {
		return err
	}

	s.logEventError(ctx, event.TopicUserPasswordChanged, user.ID,
		s.Events.PublishPasswordChanged(ctx, user, event.PasswordChangedByForce))
	s.logMailError(ctx, "password_changed", user.ID, s.Mailer.SendPasswordChanged(ctx, user.Email, user.FullName()))

	recordAuth("force_change_password", "success")
	s.Logger.InfoContext(ctx, "forced password change completed", slog.String("user_id", user.ID))
	return nil
}

// RefreshToken exchanges a refresh token for a new access token and a new
// refresh token. Each refresh token can be exchanged once.
func (s *AuthService) RefreshToken(ctx context.Context, token, deviceInfo string) (*domain.TokenResponse, error) {
	record, err := s.RefreshTokens.GetByHash(ctx, auth.Fingerprint(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			recordAuth("refresh", "invalid_token")
			return nil, domain.InvalidToken("invalid refresh token")
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}

	now := s.now()
	if err := record.Validate(now); err != nil {
		if delErr := s.RefreshTokens.Delete(ctx, record.ID); delErr != nil {
			s.Logger.ErrorContext(ctx, "failed to delete rejected refresh token",
				slog.String("user_id", record.UserID),
				slog.String("error", delErr.Error()),
			)
		}
		recordAuth("refresh", "rejected")
		return nil, err
	}

	user, err := s.getUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		if _, err := s.RefreshTokens.RevokeAllByUser(ctx, user.ID, ""); err != nil {
			return nil, fmt.Errorf("revoke refresh tokens: %w", err)
		}
		recordAuth("refresh", "inactive")
		return nil, domain.UserInactive()
	}

	record.MarkUsed(now)

	sessionID := uuid.NewString()
	accessToken, err := s.Tokens.CreateAccessToken(user.ID, user.Role, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	if deviceInfo == "" {
		deviceInfo = record.DeviceInfo
	}
	raw, next, err := s.newRefreshToken(sessionID, user.ID, deviceInfo, now)
	if err != nil {
		return nil, err
	}

	if err := s.RefreshTokens.Rotate(ctx, record, next); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			recordAuth("refresh", "replayed")
		}
		return nil, err
	}

	recordAuth("refresh", "success")
	s.Logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	return &domain.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: raw,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    int64(s.Tokens.AccessTTL().Seconds()),
	}, nil
}

// newRefreshToken signs a refresh token and builds the record to store under
// id, the session ID carried by the matching access token.
func (s *AuthService) newRefreshToken(id, userID, deviceInfo string, now time.Time) (string, *domain.RefreshToken, error) {
	raw, err := s.Tokens.CreateRefreshToken(userID)
	if err != nil {
		return "", nil, fmt.Errorf("create refresh token: %w", err)
	}
	return raw, &domain.RefreshToken{
		ID:         id,
		TokenHash:  auth.Fingerprint(raw),
		UserID:     userID,
		ExpiresAt:  now.Add(s.Tokens.RefreshTTL()),
		DeviceInfo: truncate(deviceInfo, 255),
		CreatedAt:  now,
		IsActive:   true,
	}, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

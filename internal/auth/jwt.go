// Package auth issues, decodes and revokes the service's JWT bearer tokens.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Revocation store key prefixes.
const (
	revokedPrefix = "revoked:"
	cutoffPrefix  = "cutoff:"
	exemptPrefix  = "exempt:"
)

// Claims are the claims of both token types. Role and SessionID are only
// set on access tokens. IssuedNanos orders a token against user-wide
// revocations; iat alone only has second precision.
type Claims struct {
	Role        string `json:"role,omitempty"`
	Type        string `json:"type"`
	SessionID   string `json:"sid,omitempty"`
	IssuedNanos int64  `json:"iat_ns,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Config holds JWT signing settings.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Option customises a JWTManager.
type Option func(*JWTManager)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(m *JWTManager) { m.now = now }
}

// JWTManager mints and validates HS256 tokens and tracks revocations in a
// RevocationStore.
type JWTManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RevocationStore
	now        func() time.Time
	parser     *jwt.Parser

	lastStamp atomic.Int64
}

// NewJWTManager creates a manager signing with cfg.Secret.
func NewJWTManager(cfg Config, store RevocationStore, opts ...Option) *JWTManager {
	m := &JWTManager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		store:      store,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}
	m.parser = jwt.NewParser(parserOpts...)
	return m
}

// AccessTTL returns the default access token lifetime.
func (m *JWTManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// RefreshTTL returns the refresh token lifetime.
func (m *JWTManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// CreateAccessToken signs an access token for userID. sessionID names the
// refresh token record the access token belongs to and may be empty. A zero
// ttl uses the configured default.
func (m *JWTManager) CreateAccessToken(userID, role, sessionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.accessTTL
	}
	return m.sign(userID, role, sessionID, TokenTypeAccess, ttl)
}

// CreateRefreshToken signs a refresh token for userID.
func (m *JWTManager) CreateRefreshToken(userID string) (string, error) {
	return m.sign(userID, "", "", TokenTypeRefresh, m.refreshTTL)
}

// stamp returns the current time in nanoseconds. Successive calls on one
// manager return strictly increasing values, so a token and a user-wide
// revocation are never issued at the same instant.
func (m *JWTManager) stamp() int64 {
	now := m.now().UnixNano()
	for {
		last := m.lastStamp.Load()
		next := max(now, last+1)
		if m.lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (m *JWTManager) sign(userID, role, sessionID, typ string, ttl time.Duration) (string, error) {
	issued := m.stamp()
	now := time.Unix(0, issued).UTC()
	claims := &Claims{
		Role:        role,
		Type:        typ,
		SessionID:   sessionID,
		IssuedNanos: issued,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// DecodeToken verifies the signature and expiry of token. Expired tokens
// fail with domain.ExpiredToken, anything else with domain.InvalidToken.
func (m *JWTManager) DecodeToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ExpiredToken("token has expired")
		}
		return nil, domain.InvalidToken("invalid token")
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, domain.InvalidToken("invalid token")
	}
	return claims, nil
}

// IsTokenValid reports whether token decodes. It does not consult the
// revocation store.
func (m *JWTManager) IsTokenValid(token string) bool {
	_, err := m.DecodeToken(token)
	return err == nil
}

// TokenExpiration returns the exp claim of a valid token.
func (m *JWTManager) TokenExpiration(token string) (time.Time, error) {
	claims, err := m.DecodeToken(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, domain.InvalidToken("token has no expiration")
	}
	return claims.ExpiresAt.Time, nil
}

// RevokeToken blacklists token until it would have expired anyway. Revoking
// an invalid, expired or already revoked token is a no-op.
func (m *JWTManager) RevokeToken(ctx context.Context, token string) error {
	claims, err := m.DecodeToken(token)
	if err != nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	if err := m.store.Put(ctx, revokedPrefix+Fingerprint(token), claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether token was revoked individually or by a
// user-wide revocation that did not exempt it.
func (m *JWTManager) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	fp := Fingerprint(token)

	_, revoked, err := m.store.Get(ctx, revokedPrefix+fp)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	if revoked {
		return true, nil
	}

	claims := &Claims{}
	if _, _, err := m.parser.ParseUnverified(token, claims); err != nil || claims.IssuedAt == nil {
		return false, nil
	}

	raw, ok, err := m.store.Get(ctx, cutoffPrefix+claims.Subject)
	if err != nil {
		return false, fmt.Errorf("check user revocation cutoff: %w", err)
	}
	if !ok {
		return false, nil
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse revocation cutoff %q: %w", raw, err)
	}
	if issuedNanos(claims) >= cutoff {
		return false, nil
	}

	exemptFor, exempt, err := m.store.Get(ctx, exemptPrefix+fp)
	if err != nil {
		return false, fmt.Errorf("check token exemption: %w", err)
	}
	return !(exempt && exemptFor == raw), nil
}

// RevokeAllUserTokens invalidates every token issued to userID up to now.
// When keepToken is non-empty it stays valid, so the caller keeps the session
// that requested the change. The exemption only holds against this
// revocation; a later one covers keepToken too.
func (m *JWTManager) RevokeAllUserTokens(ctx context.Context, userID, keepToken string) error {
	cutoff := strconv.FormatInt(m.stamp(), 10)
	now := m.now()

	if keepToken != "" {
		if claims, err := m.DecodeToken(keepToken); err == nil && claims.Subject == userID {
			if ttl := claims.ExpiresAt.Sub(now); ttl > 0 {
				if err := m.store.Put(ctx, exemptPrefix+Fingerprint(keepToken), cutoff, ttl); err != nil {
					return fmt.Errorf("exempt current token: %w", err)
				}
			}
		}
	}

	// Every token issued before the cutoff has expired once accessTTL has
	// passed, so the cutoff entry need not outlive it.
	ttl := m.accessTTL + time.Second
	if err := m.store.Put(ctx, cutoffPrefix+userID, cutoff, ttl); err != nil {
		return fmt.Errorf("store revocation cutoff: %w", err)
	}
	return nil
}

// issuedNanos falls back to iat for tokens minted without iat_ns.
func issuedNanos(c *Claims) int64 {
	if c.IssuedNanos > 0 {
		return c.IssuedNanos
	}
	return c.IssuedAt.UnixNano()
}

// Fingerprint returns the hex SHA-256 of token. Stores key tokens by
// fingerprint and never by value.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

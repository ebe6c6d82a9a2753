package domain

import "time"

// TokenTypeBearer is the token_type returned with every token response.
const TokenTypeBearer = "bearer"

// RefreshToken is a stored refresh session. Only the SHA-256 digest of the
// token handed to the client is kept.
type RefreshToken struct {
	ID         string     `json:"id"`
	TokenHash  string     `json:"-"`
	UserID     string     `json:"user_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	DeviceInfo string     `json:"device_info,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IsActive   bool       `json:"is_active"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Validate rejects tokens that are inactive, expired or already used.
func (t *RefreshToken) Validate(now time.Time) error {
	switch {
	case !t.IsActive:
		return InvalidToken("refresh token is no longer active")
	case t.LastUsedAt != nil:
		return InvalidToken("refresh token has already been used")
	case t.IsExpired(now):
		return ExpiredToken("refresh token has expired")
	}
	return nil
}

// MarkUsed records the single permitted use of the token.
func (t *RefreshToken) MarkUsed(now time.Time) {
	t.LastUsedAt = &now
	t.IsActive = false
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         *UserSnapshot `json:"user,omitempty"`
}

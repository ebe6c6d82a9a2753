package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
)

// ============================================================================
// Login / Refresh
// ============================================================================

func TestLogin_RefreshRotation(t *testing.T) {
	srv := newTestServer(t)
	user := srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)

	tokens := srv.login(t, "ana@sena.edu.co", testPassword)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, domain.TokenTypeBearer, tokens.TokenType)
	require.NotNil(t, tokens.User)
	assert.Equal(t, user.ID, tokens.User.ID)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decode[domain.TokenResponse](t, rec).Data
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	assert.Nil(t, rotated.User)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeInvalidToken, errorCode(t, rec))
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)

	wrong := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "ana@sena.edu.co", Password: "Incorrecta#1"})
	unknown := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "nadie@sena.edu.co", Password: "Incorrecta#1"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Contains(t, wrong.Body.String(), domain.CodeAuthenticationFailed)
}

func TestLogin_InactiveUser(t *testing.T) {
	srv := newTestServer(t)
	user := srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)
	_, err := srv.users.DeactivateUser(t.Context(), user.ID, "")
	require.NoError(t, err)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "ana@sena.edu.co", Password: testPassword})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeUserInactive, errorCode(t, rec))
}

func TestLogin_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ana@sena.edu.co"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode[any](t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "password")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rec))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`email=a`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// Me / Logout
// ============================================================================

func TestMe(t *testing.T) {
	srv := newTestServer(t)
	user := srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)
	tokens := srv.login(t, "ana@sena.edu.co", testPassword)

	rec := srv.do(t, http.MethodGet, "/api/v1/auth/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[domain.UserSnapshot](t, rec).Data
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, "ana@sena.edu.co", me.Email)

	rec = srv.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/auth/me", tokens.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)
	tokens := srv.login(t, "ana@sena.edu.co", testPassword)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/logout", tokens.AccessToken, LogoutRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/auth/me", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_WithoutBody(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)
	tokens := srv.login(t, "ana@sena.edu.co", testPassword)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/logout", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The refresh token was not named, so it still works.
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)
	first := srv.login(t, "ana@sena.edu.co", testPassword)
	second := srv.login(t, "ana@sena.edu.co", testPassword)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/logout-all", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, tokens := range []domain.TokenResponse{first, second} {
		rec = srv.do(t, http.MethodGet, "/api/v1/auth/me", tokens.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

// ============================================================================
// Password recovery
// ============================================================================

func TestForgotAndResetPassword(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)
	session := srv.login(t, "ana@sena.edu.co", testPassword)
	sentBefore := srv.sender.count()

	known := srv.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", ForgotPasswordRequest{Email: "ana@sena.edu.co"})
	unknown := srv.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", ForgotPasswordRequest{Email: "nadie@sena.edu.co"})
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Equal(t, sentBefore+1, srv.sender.count())

	token := srv.sender.lastResetToken(t, "ana@sena.edu.co")

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", ResetPasswordRequest{Token: token, NewPassword: "corta"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeWeakPassword, errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", ResetPasswordRequest{Token: token, NewPassword: otherPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", ResetPasswordRequest{Token: token, NewPassword: otherPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeInvalidToken, errorCode(t, rec))

	rec = srv.do(t, http.MethodGet, "/api/v1/auth/me", session.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: session.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	srv.login(t, "ana@sena.edu.co", otherPassword)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "ana@sena.edu.co", "1012345678", domain.RoleApprentice)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", ForgotPasswordRequest{Email: "ana@sena.edu.co"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := srv.sender.lastResetToken(t, "ana@sena.edu.co")
	srv.clock.Advance(25 * time.Hour)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", ResetPasswordRequest{Token: token, NewPassword: otherPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeInvalidToken, errorCode(t, rec))
}

// ============================================================================
// Forced password change
// ============================================================================

func TestForceChangePassword(t *testing.T) {
	srv := newTestServer(t)
	_, temp := srv.createTempUser(t, "luis@sena.edu.co", "1098765432")

	session := srv.login(t, "luis@sena.edu.co", temp)
	require.NotNil(t, session.User)
	assert.True(t, session.User.MustChangePassword)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/force-change-password", session.AccessToken,
		ForceChangePasswordRequest{NewPassword: otherPassword, RefreshToken: session.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The session that changed the password survives.
	rec = srv.do(t, http.MethodGet, "/api/v1/auth/me", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.UserSnapshot](t, rec).Data.MustChangePassword)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/force-change-password", session.AccessToken,
		ForceChangePasswordRequest{NewPassword: "Tercera%2027z"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeAuthenticationFailed, errorCode(t, rec))

	srv.login(t, "luis@sena.edu.co", otherPassword)
}

func TestForceChangePassword_WithoutRefreshTokenKeepsSession(t *testing.T) {
	srv := newTestServer(t)
	_, temp := srv.createTempUser(t, "luis@sena.edu.co", "1098765432")
	other := srv.login(t, "luis@sena.edu.co", temp)
	session := srv.login(t, "luis@sena.edu.co", temp)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/force-change-password", session.AccessToken,
		ForceChangePasswordRequest{NewPassword: otherPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: session.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: other.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

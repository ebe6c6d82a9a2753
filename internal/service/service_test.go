package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elparchetipk/asiste-app-be-fast/internal/auth"
	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/password"
	"github.com/elparchetipk/asiste-app-be-fast/internal/repository/memory"
)

const (
	testPassword  = "Segura#2025x"
	otherPassword = "Distinta$2026y"
)

// --- Mocks ---

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, email, token, name string) error {
	return m.Called(ctx, email, token, name).Error(0)
}

func (m *mockMailer) SendWelcome(ctx context.Context, email, name, tempPassword string) error {
	return m.Called(ctx, email, name, tempPassword).Error(0)
}

func (m *mockMailer) SendPasswordChanged(ctx context.Context, email, name string) error {
	return m.Called(ctx, email, name).Error(0)
}

func (m *mockMailer) SendDeactivationNotice(ctx context.Context, email, name, reason string) error {
	return m.Called(ctx, email, name, reason).Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishUserCreated(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockEvents) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockEvents) PublishUserDeactivated(ctx context.Context, user *domain.User, reason string) error {
	return m.Called(ctx, user, reason).Error(0)
}

func (m *mockEvents) PublishPasswordChanged(ctx context.Context, user *domain.User, method string) error {
	return m.Called(ctx, user, method).Error(0)
}

type mockUserRepository struct {
	mock.Mock
	*memory.UserRepository
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	deps      Dependencies
	auth      *AuthService
	users     *UserService
	userRepo  *memory.UserRepository
	tokenRepo *memory.RefreshTokenRepository
	jwt       *auth.JWTManager
	mailer    *mockMailer
	events    *mockEvents
	clock     *fakeClock
	seeded    []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	jwtManager := auth.NewJWTManager(auth.Config{
		Secret:     "service-test-secret-that-is-32-bytes!",
		Issuer:     "user-service",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, auth.NewMemoryRevocationStore(), auth.WithClock(clock.Now))

	bcryptHasher, err := password.NewBcrypt(4, password.DefaultPolicy())
	require.NoError(t, err)

	mailer := new(mockMailer)
	mailer.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	mailer.On("SendWelcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	mailer.On("SendPasswordChanged", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	mailer.On("SendDeactivationNotice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	events := new(mockEvents)
	events.On("PublishUserCreated", mock.Anything, mock.Anything).Return(nil).Maybe()
	events.On("PublishUserUpdated", mock.Anything, mock.Anything).Return(nil).Maybe()
	events.On("PublishUserDeactivated", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	events.On("PublishPasswordChanged", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	userRepo := memory.NewUserRepository()
	tokenRepo := memory.NewRefreshTokenRepository()

	deps := Dependencies{
		Users:         userRepo,
		RefreshTokens: tokenRepo,
		Tokens:        jwtManager,
		Hasher:        password.NewPool(bcryptHasher, 4),
		Policy:        password.DefaultPolicy(),
		Mailer:        mailer,
		Events:        events,
		Logger:        newTestLogger(),
		Now:           clock.Now,
	}

	return &testEnv{
		deps:      deps,
		auth:      NewAuthService(deps, AuthConfig{IssueRefreshOnLogin: true}),
		users:     NewUserService(deps),
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		jwt:       jwtManager,
		mailer:    mailer,
		events:    events,
		clock:     clock,
	}
}

type userOpt func(*domain.User)

func inactive() userOpt   { return func(u *domain.User) { u.IsActive = false } }
func mustChange() userOpt { return func(u *domain.User) { u.MustChangePassword = true } }

// seedUser stores an active apprentice whose password is testPassword.
func (e *testEnv) seedUser(t *testing.T, email string, opts ...userOpt) *domain.User {
	t.Helper()

	hash, err := e.deps.Hasher.Hash(context.Background(), testPassword)
	require.NoError(t, err)

	now := e.clock.Now()
	u := &domain.User{
		ID:             "user-" + email,
		FirstName:      "Ana",
		LastName:       "Pérez",
		Email:          email,
		DocumentNumber: fmt.Sprintf("%d", 1000000+len(e.seeded)),
		DocumentType:   domain.DocumentCC,
		PasswordHash:   hash,
		Role:           domain.RoleApprentice,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, e.userRepo.Create(context.Background(), u))
	e.seeded = append(e.seeded, u.ID)
	return u
}

func (e *testEnv) login(t *testing.T, email, plain string) *domain.TokenResponse {
	t.Helper()
	resp, err := e.auth.Login(context.Background(), LoginInput{Email: email, Password: plain, DeviceInfo: "test"})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) accessValid(t *testing.T, token string) bool {
	t.Helper()
	revoked, err := e.jwt.IsTokenRevoked(context.Background(), token)
	require.NoError(t, err)
	return e.jwt.IsTokenValid(token) && !revoked
}

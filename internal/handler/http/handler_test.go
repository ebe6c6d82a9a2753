package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elparchetipk/asiste-app-be-fast/internal/auth"
	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/event"
	"github.com/elparchetipk/asiste-app-be-fast/internal/mailer"
	"github.com/elparchetipk/asiste-app-be-fast/internal/password"
	"github.com/elparchetipk/asiste-app-be-fast/internal/repository/memory"
	"github.com/elparchetipk/asiste-app-be-fast/internal/service"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/health"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/httputil"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/middleware"
)

const (
	testPassword  = "Segura#2025x"
	otherPassword = "Distinta$2026y"
	adminEmail    = "admin@sicora.sena.edu.co"
)

// ============================================================================
// Test Helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingSender struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (s *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

var resetTokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// lastResetToken extracts the token from the newest reset email to email.
func (s *recordingSender) lastResetToken(t *testing.T, email string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].To != email {
			continue
		}
		if m := resetTokenPattern.FindStringSubmatch(s.messages[i].Text); m != nil {
			return m[1]
		}
	}
	t.Fatalf("no reset email sent to %s", email)
	return ""
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testServer struct {
	router http.Handler
	auth   *service.AuthService
	users  *service.UserService
	sender *recordingSender
	clock  *fakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := testLogger()
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	jwtManager := auth.NewJWTManager(auth.Config{
		Secret:     "handler-test-secret-with-enough-bytes",
		Issuer:     "user-service",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, auth.NewMemoryRevocationStore(), auth.WithClock(clock.Now))

	bcryptHasher, err := password.NewBcrypt(4, password.DefaultPolicy())
	require.NoError(t, err)

	sender := &recordingSender{}
	deps := service.Dependencies{
		Users:         memory.NewUserRepository(),
		RefreshTokens: memory.NewRefreshTokenRepository(),
		Tokens:        jwtManager,
		Hasher:        password.NewPool(bcryptHasher, 2),
		Policy:        password.DefaultPolicy(),
		Mailer: mailer.NewTemplateMailer(sender, mailer.Config{
			From:             "no-reply@sicora.test",
			PasswordResetURL: "https://sicora.test/reset-password",
			LoginURL:         "https://sicora.test/login",
		}),
		Events: event.NewProducer(event.NewLogPublisher(logger), logger),
		Logger: logger,
		Now:    clock.Now,
	}

	authService := service.NewAuthService(deps, service.AuthConfig{IssueRefreshOnLogin: true})
	userService := service.NewUserService(deps)

	return &testServer{
		router: NewRouter(authService, userService, health.NewHandler(), logger, middleware.DefaultCORSConfig()),
		auth:   authService,
		users:  userService,
		sender: sender,
		clock:  clock,
	}
}

// createUser stores an account with testPassword directly through the
// service.
func (s *testServer) createUser(t *testing.T, email, document, role string) *domain.UserSnapshot {
	t.Helper()
	user, err := s.users.CreateUser(context.Background(), service.CreateUserInput{
		FirstName:      "Ana",
		LastName:       "Pérez",
		Email:          email,
		DocumentNumber: document,
		DocumentType:   domain.DocumentCC,
		Role:           role,
		Password:       testPassword,
	})
	require.NoError(t, err)
	return user
}

var tempPasswordPattern = regexp.MustCompile(`temporal es: (\S+)`)

// createTempUser stores an account with a generated password and returns
// the password read from the welcome email.
func (s *testServer) createTempUser(t *testing.T, email, document string) (*domain.UserSnapshot, string) {
	t.Helper()
	user, err := s.users.CreateUser(context.Background(), service.CreateUserInput{
		FirstName:      "Luis",
		LastName:       "Mora",
		Email:          email,
		DocumentNumber: document,
		DocumentType:   domain.DocumentCC,
	})
	require.NoError(t, err)

	s.sender.mu.Lock()
	defer s.sender.mu.Unlock()
	for _, msg := range s.sender.messages {
		if m := tempPasswordPattern.FindStringSubmatch(msg.Text); msg.To == email && m != nil {
			return user, m[1]
		}
	}
	t.Fatalf("no welcome email with a temporary password sent to %s", email)
	return nil, ""
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "handler-test")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email, plain string) domain.TokenResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: email, Password: plain})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[domain.TokenResponse](t, rec).Data
}

type envelope[T any] struct {
	Data  T                       `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode[json.RawMessage](t, rec)
	require.NotNil(t, env.Error, "expected an error body, got %s", rec.Body.String())
	return env.Error.Code
}

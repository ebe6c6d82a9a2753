package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elparchetipk/asiste-app-be-fast/internal/password"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

var strongSecret = strings.Repeat("s", 40)

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.HTTPPort)
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, BackendRedis, cfg.RevocationBackend)
	assert.Equal(t, 60*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshExpiry)
	assert.Equal(t, 24*time.Hour, cfg.ResetTokenExpiry)
	assert.True(t, cfg.LoginIssuesRefreshToken)
	assert.Equal(t, MailerLog, cfg.MailerProvider)
	assert.Equal(t, "admin@sicora.sena.edu.co", cfg.SeedAdminEmail)
	assert.Equal(t, password.DefaultPolicy(), cfg.PasswordPolicy())
}

func TestLoad_Development_AcceptsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
		"JWT_SECRET":  defaultJWTSecret,
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultJWTSecret, cfg.JWTSecret)
}

func TestLoad_Production_Secret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr string
	}{
		{"default secret", defaultJWTSecret, "JWT_SECRET must be explicitly set"},
		{"short secret", "too-short", "at least 32 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, map[string]string{
				"ENVIRONMENT": "production",
				"JWT_SECRET":  tt.secret,
			})

			cfg, err := Load()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Production_Valid(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":             "production",
		"JWT_SECRET":              strongSecret,
		"JWT_ACCESS_TOKEN_EXPIRY": "15m",
		"KAFKA_ENABLED":           "true",
		"KAFKA_BROKERS":           "k1:9092,k2:9092",
		"MAILER_PROVIDER":         "kafka",
		"PASSWORD_HASH_ALGORITHM": "argon2id",
		"CORS_ALLOWED_ORIGINS":    "https://sicora.sena.edu.co",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, password.AlgorithmArgon2id, cfg.Password().Algorithm)
	assert.Equal(t, []string{"https://sicora.sena.edu.co"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{"port out of range", map[string]string{"USER_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"unknown storage", map[string]string{"STORAGE_BACKEND": "sqlite"}, "invalid STORAGE_BACKEND"},
		{"unknown revocation", map[string]string{"REVOCATION_BACKEND": "etcd"}, "invalid REVOCATION_BACKEND"},
		{"unknown hash", map[string]string{"PASSWORD_HASH_ALGORITHM": "md5"}, "invalid PASSWORD_HASH_ALGORITHM"},
		{"unknown mailer", map[string]string{"MAILER_PROVIDER": "smtp"}, "invalid MAILER_PROVIDER"},
		{"refresh shorter than access", map[string]string{"JWT_ACCESS_TOKEN_EXPIRY": "2h", "JWT_REFRESH_TOKEN_EXPIRY": "1h"}, "must not be shorter"},
		{"zero reset expiry", map[string]string{"RESET_TOKEN_EXPIRY": "0s"}, "RESET_TOKEN_EXPIRY"},
		{"tiny min length", map[string]string{"PASSWORD_MIN_LENGTH": "4"}, "PASSWORD_MIN_LENGTH"},
		{"sendgrid without key", map[string]string{"MAILER_PROVIDER": "sendgrid"}, "SENDGRID_API_KEY"},
		{"mailgun without domain", map[string]string{"MAILER_PROVIDER": "mailgun", "MAILGUN_API_KEY": "k"}, "MAILGUN_DOMAIN"},
		{"kafka mailer without kafka", map[string]string{"MAILER_PROVIDER": "kafka"}, "KAFKA_ENABLED"},
		{"bad duration", map[string]string{"JWT_ACCESS_TOKEN_EXPIRY": "soon"}, "load user config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENVIRONMENT", "development")
			setEnvs(t, tt.envs)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MemoryBackendsOnlyInDevelopment(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":     "staging",
		"JWT_SECRET":      strongSecret,
		"STORAGE_BACKEND": "memory",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory backends")
}

func TestConfig_Conversions(t *testing.T) {
	cfg := &Config{
		PostgresHost:       "db",
		PostgresPort:       5433,
		PostgresUser:       "u",
		PostgresPass:       "p",
		PostgresDB:         "users",
		PostgresSSL:        "require",
		SlowQueryThreshold: 250,
		RedisHost:          "cache",
		RedisPort:          6380,
	}

	pg := cfg.Postgres()
	assert.Equal(t, "postgres://u:p@db:5433/users?sslmode=require", pg.DSN())
	assert.Equal(t, 250*time.Millisecond, pg.SlowQueryThreshold)
	assert.Equal(t, "cache:6380", cfg.Redis().Addr())

	tc := cfg.Tracing("user-service", "1.0.0")
	assert.Equal(t, "user-service", tc.ServiceName)
	assert.False(t, tc.Enabled)
}

package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/elparchetipk/asiste-app-be-fast/internal/password"
	pkgconfig "github.com/elparchetipk/asiste-app-be-fast/pkg/config"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/database"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Backend and provider names.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"

	MailerLog      = "log"
	MailerKafka    = "kafka"
	MailerSendGrid = "sendgrid"
	MailerMailgun  = "mailgun"
)

// Config holds all configuration for the user service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"USER_HTTP_PORT" envDefault:"8001"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Storage
	StorageBackend    string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	RevocationBackend string `env:"REVOCATION_BACKEND" envDefault:"redis"`

	// PostgreSQL
	PostgresHost       string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string `env:"POSTGRES_USER" envDefault:"sicora"`
	PostgresPass       string `env:"POSTGRES_PASSWORD" envDefault:"sicora_secret"`
	PostgresDB         string `env:"USER_DB_NAME" envDefault:"user_db"`
	PostgresSSL        string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns   int32  `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	SlowQueryThreshold int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_KEY_PREFIX" envDefault:"user-service:"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"sicora-user-service"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"60m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Authentication flow
	LoginIssuesRefreshToken bool          `env:"LOGIN_ISSUES_REFRESH_TOKEN" envDefault:"true"`
	ResetTokenExpiry        time.Duration `env:"RESET_TOKEN_EXPIRY" envDefault:"24h"`
	RefreshTokenPurge       time.Duration `env:"REFRESH_TOKEN_PURGE_INTERVAL" envDefault:"1h"`

	// Password hashing and policy
	PasswordHashAlgorithm  string `env:"PASSWORD_HASH_ALGORITHM" envDefault:"bcrypt"`
	BcryptCost             int    `env:"BCRYPT_COST" envDefault:"12"`
	HashConcurrency        int    `env:"HASH_CONCURRENCY" envDefault:"0"`
	PasswordMinLength      int    `env:"PASSWORD_MIN_LENGTH" envDefault:"10"`
	PasswordRequireUpper   bool   `env:"PASSWORD_REQUIRE_UPPERCASE" envDefault:"true"`
	PasswordRequireLower   bool   `env:"PASSWORD_REQUIRE_LOWERCASE" envDefault:"true"`
	PasswordRequireDigit   bool   `env:"PASSWORD_REQUIRE_DIGIT" envDefault:"true"`
	PasswordRequireSpecial bool   `env:"PASSWORD_REQUIRE_SPECIAL" envDefault:"true"`

	// Mail
	MailerProvider   string        `env:"MAILER_PROVIDER" envDefault:"log"`
	SendGridAPIKey   string        `env:"SENDGRID_API_KEY"`
	MailgunDomain    string        `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey    string        `env:"MAILGUN_API_KEY"`
	MailFrom         string        `env:"MAIL_FROM" envDefault:"no-reply@sicora.sena.edu.co"`
	MailFromName     string        `env:"MAIL_FROM_NAME" envDefault:"SICORA"`
	PasswordResetURL string        `env:"PASSWORD_RESET_URL" envDefault:"http://localhost:3000/reset-password"`
	LoginURL         string        `env:"LOGIN_URL" envDefault:"http://localhost:3000/login"`
	MailSendTimeout  time.Duration `env:"MAIL_ASYNC_TIMEOUT" envDefault:"30s"`

	// Admin seeding
	SeedAdmin         bool   `env:"SEED_ADMIN_ENABLED" envDefault:"true"`
	SeedAdminEmail    string `env:"SEED_ADMIN_EMAIL" envDefault:"admin@sicora.sena.edu.co"`
	SeedAdminDocument string `env:"SEED_ADMIN_DOCUMENT" envDefault:"1000000001"`
	SeedAdminPassword string `env:"SEED_ADMIN_PASSWORD"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	OTelInsecure   bool    `env:"OTEL_INSECURE" envDefault:"true"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}

	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return fmt.Errorf("JWT token expiries must be positive")
	}
	if c.JWTRefreshExpiry < c.JWTAccessExpiry {
		return fmt.Errorf("JWT_REFRESH_TOKEN_EXPIRY (%s) must not be shorter than JWT_ACCESS_TOKEN_EXPIRY (%s)",
			c.JWTRefreshExpiry, c.JWTAccessExpiry)
	}
	if c.ResetTokenExpiry <= 0 {
		return fmt.Errorf("RESET_TOKEN_EXPIRY must be positive")
	}

	if err := oneOf("STORAGE_BACKEND", c.StorageBackend, BackendPostgres, BackendMemory); err != nil {
		return err
	}
	if err := oneOf("REVOCATION_BACKEND", c.RevocationBackend, BackendRedis, BackendMemory); err != nil {
		return err
	}
	if err := oneOf("PASSWORD_HASH_ALGORITHM", c.PasswordHashAlgorithm, password.AlgorithmBcrypt, password.AlgorithmArgon2id); err != nil {
		return err
	}
	if err := oneOf("MAILER_PROVIDER", c.MailerProvider, MailerLog, MailerKafka, MailerSendGrid, MailerMailgun); err != nil {
		return err
	}

	if c.PasswordMinLength < 8 || c.PasswordMinLength > 128 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be between 8 and 128, got %d", c.PasswordMinLength)
	}

	switch c.MailerProvider {
	case MailerSendGrid:
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when MAILER_PROVIDER=sendgrid")
		}
	case MailerMailgun:
		if c.MailgunDomain == "" || c.MailgunAPIKey == "" {
			return fmt.Errorf("MAILGUN_DOMAIN and MAILGUN_API_KEY are required when MAILER_PROVIDER=mailgun")
		}
	case MailerKafka:
		if !c.KafkaEnabled {
			return fmt.Errorf("MAILER_PROVIDER=kafka requires KAFKA_ENABLED=true")
		}
	}

	if !c.IsDevelopment() && (c.StorageBackend == BackendMemory || c.RevocationBackend == BackendMemory) {
		return fmt.Errorf("memory backends are only allowed in development, got environment %q", c.Environment)
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("invalid %s %q: must be one of %v", name, value, allowed)
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Postgres returns the connection settings for the user database.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:               c.PostgresHost,
		Port:               c.PostgresPort,
		User:               c.PostgresUser,
		Password:           c.PostgresPass,
		DBName:             c.PostgresDB,
		SSLMode:            c.PostgresSSL,
		MaxConns:           c.PostgresMaxConns,
		MinConns:           2,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    30 * time.Minute,
		SlowQueryThreshold: time.Duration(c.SlowQueryThreshold) * time.Millisecond,
	}
}

// Redis returns the connection settings for the revocation store.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:         c.RedisHost,
		Port:         c.RedisPort,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// PasswordPolicy returns the configured strength policy.
func (c *Config) PasswordPolicy() password.Policy {
	return password.Policy{
		MinLength:      c.PasswordMinLength,
		MaxLength:      128,
		RequireUpper:   c.PasswordRequireUpper,
		RequireLower:   c.PasswordRequireLower,
		RequireDigit:   c.PasswordRequireDigit,
		RequireSpecial: c.PasswordRequireSpecial,
	}
}

// Password returns the hasher settings.
func (c *Config) Password() password.Config {
	return password.Config{
		Algorithm:   c.PasswordHashAlgorithm,
		BcryptCost:  c.BcryptCost,
		Policy:      c.PasswordPolicy(),
		Concurrency: c.HashConcurrency,
	}
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing(serviceName, version string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTelEndpoint,
		SampleRate:     c.OTelSampleRate,
		Insecure:       c.OTelInsecure,
		Enabled:        c.OTelEnabled,
	}
}

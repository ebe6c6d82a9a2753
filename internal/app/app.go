package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/elparchetipk/asiste-app-be-fast/internal/auth"
	"github.com/elparchetipk/asiste-app-be-fast/internal/config"
	"github.com/elparchetipk/asiste-app-be-fast/internal/event"
	handler "github.com/elparchetipk/asiste-app-be-fast/internal/handler/http"
	"github.com/elparchetipk/asiste-app-be-fast/internal/mailer"
	"github.com/elparchetipk/asiste-app-be-fast/internal/password"
	"github.com/elparchetipk/asiste-app-be-fast/internal/repository"
	"github.com/elparchetipk/asiste-app-be-fast/internal/repository/memory"
	"github.com/elparchetipk/asiste-app-be-fast/internal/repository/postgres"
	"github.com/elparchetipk/asiste-app-be-fast/internal/seed"
	"github.com/elparchetipk/asiste-app-be-fast/internal/service"
	"github.com/elparchetipk/asiste-app-be-fast/migrations"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/breaker"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/database"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/health"
	pkgkafka "github.com/elparchetipk/asiste-app-be-fast/pkg/kafka"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/middleware"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/tracing"
)

const (
	serviceName    = "user-service"
	serviceVersion = "0.1.0"
)

// App wires together all dependencies and runs the user service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	mailer         *mailer.Async
	refreshTokens  repository.RefreshTokenRepository
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Whatever was opened before a failure is closed again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.closeBackends()
		}
	}()

	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.Tracing(serviceName, serviceVersion))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	// Storage.
	var (
		userRepo         repository.UserRepository
		refreshTokenRepo repository.RefreshTokenRepository
	)
	switch cfg.StorageBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		userRepo = memory.NewUserRepository()
		refreshTokenRepo = memory.NewRefreshTokenRepository()
	default:
		a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, "user"); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		userRepo = postgres.NewUserRepository(a.pool)
		refreshTokenRepo = postgres.NewRefreshTokenRepository(a.pool)
		pool := a.pool
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	}
	a.refreshTokens = refreshTokenRepo

	// Revocation store.
	var revocations auth.RevocationStore
	switch cfg.RevocationBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory token revocation, revocations are lost on restart")
		revocations = auth.NewMemoryRevocationStore()
	default:
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		revocations = auth.NewRedisRevocationStore(a.redis, cfg.RedisPrefix)
		client := a.redis
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	// Events.
	var publisher event.Publisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		producer := a.producer
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		publisher = event.NewLogPublisher(logger)
	}
	eventProducer := event.NewProducer(publisher, logger)

	hasher, err := password.New(cfg.Password())
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	delivery, err := newMailer(cfg, eventProducer, logger)
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}
	a.mailer = mailer.NewAsync(delivery, cfg.MailSendTimeout, logger)

	jwtManager := auth.NewJWTManager(auth.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessExpiry,
		RefreshTTL: cfg.JWTRefreshExpiry,
	}, revocations)

	deps := service.Dependencies{
		Users:         userRepo,
		RefreshTokens: refreshTokenRepo,
		Tokens:        jwtManager,
		Hasher:        hasher,
		Policy:        cfg.PasswordPolicy(),
		Mailer:        a.mailer,
		Events:        eventProducer,
		Logger:        logger,
	}
	authService := service.NewAuthService(deps, service.AuthConfig{
		IssueRefreshOnLogin: cfg.LoginIssuesRefreshToken,
		ResetTokenTTL:       cfg.ResetTokenExpiry,
	})
	userService := service.NewUserService(deps)

	if cfg.SeedAdmin {
		if cfg.SeedAdminPassword == "" && cfg.MailerProvider == config.MailerLog {
			logger.Warn("admin seeded with a temporary password that the log mailer will not deliver, set SEED_ADMIN_PASSWORD")
		}
		if _, err := seed.Admin(ctx, userRepo, userService, seed.AdminConfig{
			Email:          cfg.SeedAdminEmail,
			DocumentNumber: cfg.SeedAdminDocument,
			Password:       cfg.SeedAdminPassword,
		}, logger); err != nil {
			return nil, err
		}
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	corsConfig.Environment = cfg.Environment

	router := handler.NewRouter(authService, userService, healthHandler, logger, corsConfig)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newMailer builds the delivery chain for cfg.MailerProvider. Provider
// senders sit behind a circuit breaker.
func newMailer(cfg *config.Config, events *event.Producer, logger *slog.Logger) (mailer.Mailer, error) {
	mailCfg := mailer.Config{
		From:             cfg.MailFrom,
		FromName:         cfg.MailFromName,
		PasswordResetURL: cfg.PasswordResetURL,
		LoginURL:         cfg.LoginURL,
	}

	var sender mailer.Sender
	switch cfg.MailerProvider {
	case config.MailerKafka:
		return mailer.NewEventMailer(events, cfg.PasswordResetURL), nil
	case config.MailerSendGrid:
		sg, err := mailer.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName)
		if err != nil {
			return nil, err
		}
		sender = mailer.NewBreaker(sg, breaker.DefaultConfig("sendgrid"), logger)
	case config.MailerMailgun:
		mg, err := mailer.NewMailgunMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailFrom)
		if err != nil {
			return nil, err
		}
		sender = mailer.NewBreaker(mg, breaker.DefaultConfig("mailgun"), logger)
	default:
		sender = mailer.NewLogMailer(logger)
	}
	return mailer.NewTemplateMailer(sender, mailCfg), nil
}

// Run starts the HTTP server and the expired refresh token purge, and blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	purgeCtx, stopPurge := context.WithCancel(ctx)
	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		a.purgeLoop(purgeCtx, a.cfg.RefreshTokenPurge)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopPurge()
	<-purgeDone

	return errors.Join(runErr, a.Shutdown())
}

func (a *App) purgeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.purgeExpiredTokens(ctx)
		}
	}
}

// purgeExpiredTokens deletes refresh tokens that are past their expiry.
// Failures are logged and retried on the next tick.
func (a *App) purgeExpiredTokens(ctx context.Context) {
	n, err := a.refreshTokens.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "failed to purge expired refresh tokens", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "expired refresh tokens purged", slog.Int64("purged_count", n))
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Mailer (wait for queued emails)
// 3. Tracer (flush pending spans)
// 4. Kafka producer, Redis, PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error
	budget := a.cfg.ShutdownTimeout
	if budget <= 0 {
		budget = 15 * time.Second
	}

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), budget/3)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Let queued emails finish; they may still publish to Kafka.
	if a.mailer != nil {
		mailCtx, mailCancel := context.WithTimeout(context.Background(), budget/3)
		defer mailCancel()
		if err := a.mailer.Close(mailCtx); err != nil {
			a.logger.Error("mailer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close backends.
	errs = append(errs, a.closeBackends())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeBackends() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

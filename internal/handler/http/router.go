package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/service"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/health"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/middleware"
)

const serviceName = "user-service"

// NewRouter creates a chi router with all user service routes registered.
func NewRouter(
	authService *service.AuthService,
	userService *service.UserService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig middleware.CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("user"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authenticate := middleware.Authenticate(PrincipalResolver(authService), logger)
	authHandler := NewAuthHandler(authService, userService, logger)
	userHandler := NewUserHandler(userService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.RefreshToken)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/logout", authHandler.Logout)
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Post("/force-change-password", authHandler.ForceChangePassword)
			r.Get("/me", authHandler.Me)
		})
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(authenticate)

		r.Put("/me/password", userHandler.ChangePassword)
		r.Get("/{id}", userHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.ManagingRoles()...))

			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)
			r.Put("/{id}", userHandler.Update)
			r.Delete("/{id}", userHandler.Delete)
			r.Post("/{id}/activate", userHandler.Activate)
			r.Post("/{id}/deactivate", userHandler.Deactivate)
		})
	})

	return r
}

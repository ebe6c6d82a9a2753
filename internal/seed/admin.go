// Package seed creates the accounts a fresh installation needs.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/repository"
	"github.com/elparchetipk/asiste-app-be-fast/internal/service"
)

// Default admin identity.
const (
	DefaultAdminEmail    = "admin@sicora.sena.edu.co"
	DefaultAdminDocument = "1000000001"
)

// AdminConfig describes the administrator account. An empty Password makes
// the service issue a temporary one that must be changed on first login.
type AdminConfig struct {
	Email          string
	DocumentNumber string
	FirstName      string
	LastName       string
	Password       string
}

// UserCreator is the part of service.UserService the seeder needs.
type UserCreator interface {
	CreateUser(ctx context.Context, input service.CreateUserInput) (*domain.UserSnapshot, error)
}

// Admin creates the administrator account unless a user with the same email
// or document number already exists. It reports whether an account was
// created.
func Admin(ctx context.Context, users repository.UserRepository, creator UserCreator, cfg AdminConfig, logger *slog.Logger) (bool, error) {
	cfg = withDefaults(cfg)

	email, err := domain.ParseEmail(cfg.Email)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}

	exists, err := users.ExistsByEmail(ctx, email, "")
	if err != nil {
		return false, fmt.Errorf("seed admin: check email: %w", err)
	}
	if !exists {
		exists, err = users.ExistsByDocumentNumber(ctx, cfg.DocumentNumber, "")
		if err != nil {
			return false, fmt.Errorf("seed admin: check document: %w", err)
		}
	}
	if exists {
		logger.DebugContext(ctx, "admin account already present", slog.String("email", email))
		return false, nil
	}

	snap, err := creator.CreateUser(ctx, service.CreateUserInput{
		FirstName:      cfg.FirstName,
		LastName:       cfg.LastName,
		Email:          email,
		DocumentNumber: cfg.DocumentNumber,
		DocumentType:   domain.DocumentCC,
		Role:           domain.RoleAdmin,
		Password:       cfg.Password,
	})
	if err != nil {
		// Another replica won the race.
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("seed admin: %w", err)
	}

	logger.InfoContext(ctx, "admin account created",
		slog.String("user_id", snap.ID),
		slog.String("email", snap.Email),
		slog.Bool("must_change_password", snap.MustChangePassword),
	)
	return true, nil
}

func withDefaults(cfg AdminConfig) AdminConfig {
	if cfg.Email == "" {
		cfg.Email = DefaultAdminEmail
	}
	if cfg.DocumentNumber == "" {
		cfg.DocumentNumber = DefaultAdminDocument
	}
	if cfg.FirstName == "" {
		cfg.FirstName = "Administrador"
	}
	if cfg.LastName == "" {
		cfg.LastName = "SICORA"
	}
	return cfg
}

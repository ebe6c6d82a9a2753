package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/event"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/pagination"
)

const (
	maxNameLength = 100

	tempPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!#$%*+-?@"
	tempPasswordLength   = 16
)

// UserService implements account management.
type UserService struct {
	Dependencies
}

// NewUserService creates a new user service.
func NewUserService(deps Dependencies) *UserService {
	return &UserService{Dependencies: deps}
}

// --- Input types ---

// CreateUserInput holds the parameters for creating an account. An empty
// Password makes the service generate a temporary one that must be changed
// on first login.
type CreateUserInput struct {
	FirstName      string
	LastName       string
	Email          string
	DocumentNumber string
	DocumentType   string
	Role           string
	Password       string
}

// UpdateUserInput holds the fields to change. Nil fields are left alone.
type UpdateUserInput struct {
	FirstName      *string
	LastName       *string
	Email          *string
	DocumentNumber *string
	DocumentType   *string
	Role           *string
}

// ListUsersInput filters and pages ListUsers.
type ListUsersInput struct {
	Role     string
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}

// ChangePasswordInput identifies the session changing its own password.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	AccessToken     string
	RefreshToken    string
}

// --- Operations ---

// CreateUser validates input, stores the new account and sends the welcome
// email.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.UserSnapshot, error) {
	firstName, err := parseName("first name", input.FirstName)
	if err != nil {
		return nil, err
	}
	lastName, err := parseName("last name", input.LastName)
	if err != nil {
		return nil, err
	}
	email, err := domain.ParseEmail(input.Email)
	if err != nil {
		return nil, err
	}
	docType := strings.ToUpper(strings.TrimSpace(input.DocumentType))
	docNumber, err := domain.ParseDocument(docType, input.DocumentNumber)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = domain.RoleApprentice
	}
	if !domain.IsValidRole(role) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid role %q", role))
	}

	if err := s.checkUnique(ctx, email, docNumber, ""); err != nil {
		return nil, err
	}

	plain := input.Password
	var tempPassword string
	if plain == "" {
		tempPassword, err = s.temporaryPassword()
		if err != nil {
			return nil, err
		}
		plain = tempPassword
	} else if !s.Hasher.IsStrong(plain) {
		msg := "password does not meet the strength policy"
		if err := s.Policy.Check(plain); err != nil {
			msg = err.Error()
		}
		return nil, domain.WeakPassword(msg)
	}

	hash, err := s.Hasher.Hash(ctx, plain)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:                 uuid.NewString(),
		FirstName:          firstName,
		LastName:           lastName,
		Email:              email,
		DocumentNumber:     docNumber,
		DocumentType:       docType,
		PasswordHash:       hash,
		Role:               role,
		IsActive:           true,
		MustChangePassword: tempPassword != "",
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.Users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logEventError(ctx, event.TopicUserCreated, user.ID, s.Events.PublishUserCreated(ctx, user))
	s.logMailError(ctx, "welcome", user.ID, s.Mailer.SendWelcome(ctx, user.Email, user.FullName(), tempPassword))

	s.Logger.InfoContext(ctx, "user created",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
		slog.Bool("must_change_password", user.MustChangePassword),
	)
	return user.Snapshot(), nil
}

// GetUser returns a user by ID.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.UserSnapshot, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Snapshot(), nil
}

// ListUsers returns one page of users matching input.
func (s *UserService) ListUsers(ctx context.Context, input ListUsersInput) (pagination.Result[domain.UserSnapshot], error) {
	if input.Role != "" && !domain.IsValidRole(input.Role) {
		return pagination.Result[domain.UserSnapshot]{}, apperrors.InvalidInput(fmt.Sprintf("invalid role %q", input.Role))
	}

	params := pagination.New(input.Page, input.PerPage)
	filter := domain.UserFilter{
		Role:       input.Role,
		IsActive:   input.IsActive,
		SearchTerm: strings.TrimSpace(input.Search),
	}

	users, err := s.Users.List(ctx, filter, params.Offset(), params.Limit())
	if err != nil {
		return pagination.Result[domain.UserSnapshot]{}, fmt.Errorf("list users: %w", err)
	}
	total, err := s.Users.Count(ctx, filter)
	if err != nil {
		return pagination.Result[domain.UserSnapshot]{}, fmt.Errorf("count users: %w", err)
	}

	snapshots := make([]domain.UserSnapshot, 0, len(users))
	for i := range users {
		snapshots = append(snapshots, *users[i].Snapshot())
	}
	return pagination.NewResult(snapshots, total, params), nil
}

// UpdateUser applies a partial update. Email and document number stay unique.
func (s *UserService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*domain.UserSnapshot, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.FirstName != nil {
		if user.FirstName, err = parseName("first name", *input.FirstName); err != nil {
			return nil, err
		}
	}
	if input.LastName != nil {
		if user.LastName, err = parseName("last name", *input.LastName); err != nil {
			return nil, err
		}
	}
	if input.Email != nil {
		if user.Email, err = domain.ParseEmail(*input.Email); err != nil {
			return nil, err
		}
	}
	if input.DocumentType != nil || input.DocumentNumber != nil {
		docType, docNumber := user.DocumentType, user.DocumentNumber
		if input.DocumentType != nil {
			docType = strings.ToUpper(strings.TrimSpace(*input.DocumentType))
		}
		if input.DocumentNumber != nil {
			docNumber = *input.DocumentNumber
		}
		if user.DocumentNumber, err = domain.ParseDocument(docType, docNumber); err != nil {
			return nil, err
		}
		user.DocumentType = docType
	}
	if input.Role != nil {
		if !domain.IsValidRole(*input.Role) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid role %q", *input.Role))
		}
		user.Role = *input.Role
	}

	if err := s.checkUnique(ctx, user.Email, user.DocumentNumber, user.ID); err != nil {
		return nil, err
	}

	user.UpdatedAt = s.now()
	if err := s.Users.Update(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.logEventError(ctx, event.TopicUserUpdated, user.ID, s.Events.PublishUserUpdated(ctx, user))
	s.Logger.InfoContext(ctx, "user updated", slog.String("user_id", user.ID))
	return user.Snapshot(), nil
}

// ActivateUser re-enables a deactivated account.
func (s *UserService) ActivateUser(ctx context.Context, id string) (*domain.UserSnapshot, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsActive {
		return user.Snapshot(), nil
	}

	user.Activate(s.now())
	if err := s.Users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("activate user: %w", err)
	}

	s.logEventError(ctx, event.TopicUserUpdated, user.ID, s.Events.PublishUserUpdated(ctx, user))
	s.Logger.InfoContext(ctx, "user activated", slog.String("user_id", user.ID))
	return user.Snapshot(), nil
}

// DeactivateUser disables an account and ends all of its sessions.
func (s *UserService) DeactivateUser(ctx context.Context, id, reason string) (*domain.UserSnapshot, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return user.Snapshot(), nil
	}

	user.Deactivate(s.now())
	if err := s.Users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("deactivate user: %w", err)
	}
	if err := s.revokeSessions(ctx, user.ID, "", ""); err != nil {
		return nil, err
	}

	s.logEventError(ctx, event.TopicUserDeactivated, user.ID, s.Events.PublishUserDeactivated(ctx, user, reason))
	s.logMailError(ctx, "deactivation", user.ID, s.Mailer.SendDeactivationNotice(ctx, user.Email, user.FullName(), reason))

	s.Logger.InfoContext(ctx, "user deactivated", slog.String("user_id", user.ID))
	return user.Snapshot(), nil
}

// ChangePassword changes the caller's password after checking the current
// one. Other sessions are ended.
func (s *UserService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	user, err := s.getUser(ctx, input.UserID)
	if err != nil {
		return err
	}

	ok, err := s.Hasher.Verify(ctx, input.CurrentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return domain.InvalidPassword("current password is incorrect")
	}

	if err := s.checkNewPassword(ctx, user, input.NewPassword); err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, input.NewPassword); err != nil {
		return err
	}
	if err := s.Users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if err := s.revokeSessions(ctx, user.ID, input.AccessToken, input.RefreshToken); err != nil {
		return err
	}

	s.logEventError(ctx, event.TopicUserPasswordChanged, user.ID,
		s.Events.PublishPasswordChanged(ctx, user, event.PasswordChangedByChange))
	s.logMailError(ctx, "password_changed", user.ID, s.Mailer.SendPasswordChanged(ctx, user.Email, user.FullName()))

	s.Logger.InfoContext(ctx, "password changed", slog.String("user_id", user.ID))
	return nil
}

// DeleteUser soft-deletes an account and ends all of its sessions.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := s.Users.Delete(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.UserNotFound(id)
		}
		return fmt.Errorf("delete user: %w", err)
	}
	if err := s.revokeSessions(ctx, id, "", ""); err != nil {
		return err
	}

	s.Logger.InfoContext(ctx, "user deleted", slog.String("user_id", id))
	return nil
}

// --- Helpers ---

func (s *UserService) checkUnique(ctx context.Context, email, docNumber, excludeID string) error {
	taken, err := s.Users.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.UserAlreadyExists("email", email)
	}

	taken, err = s.Users.ExistsByDocumentNumber(ctx, docNumber, excludeID)
	if err != nil {
		return fmt.Errorf("check document number: %w", err)
	}
	if taken {
		return domain.UserAlreadyExists("document number", docNumber)
	}
	return nil
}

// temporaryPassword draws random passwords until one passes the policy.
func (s *UserService) temporaryPassword() (string, error) {
	for i := 0; i < 20; i++ {
		p, err := gonanoid.Generate(tempPasswordAlphabet, tempPasswordLength)
		if err != nil {
			return "", fmt.Errorf("generate temporary password: %w", err)
		}
		if s.Hasher.IsStrong(p) {
			return p, nil
		}
	}
	return "", errors.New("generate temporary password: policy cannot be satisfied")
}

func parseName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.InvalidInput(field + " is required")
	}
	if len([]rune(value)) > maxNameLength {
		return "", apperrors.InvalidInput(fmt.Sprintf("%s must be at most %d characters", field, maxNameLength))
	}
	return value, nil
}

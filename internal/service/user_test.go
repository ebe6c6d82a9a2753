package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/event"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

func validCreateInput() CreateUserInput {
	return CreateUserInput{
		FirstName:      " Laura ",
		LastName:       "Gómez",
		Email:          "Laura.Gomez@SENA.edu.co",
		DocumentNumber: "52123456",
		DocumentType:   "cc",
		Role:           domain.RoleInstructor,
		Password:       testPassword,
	}
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// CreateUser
// ---------------------------------------------------------------------------

func TestCreateUser_WithPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	snap, err := env.users.CreateUser(ctx, validCreateInput())
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "Laura", snap.FirstName)
	assert.Equal(t, "laura.gomez@sena.edu.co", snap.Email)
	assert.Equal(t, domain.DocumentCC, snap.DocumentType)
	assert.Equal(t, domain.RoleInstructor, snap.Role)
	assert.True(t, snap.IsActive)
	assert.False(t, snap.MustChangePassword)

	stored, err := env.userRepo.GetByID(ctx, snap.ID)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	env.login(t, "laura.gomez@sena.edu.co", testPassword)

	env.events.AssertCalled(t, "PublishUserCreated", mock.Anything, mock.Anything)
	env.mailer.AssertCalled(t, "SendWelcome", mock.Anything, "laura.gomez@sena.edu.co", "Laura Gómez", "")
}

func TestCreateUser_TemporaryPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	input := validCreateInput()
	input.Password = ""
	input.Role = ""

	snap, err := env.users.CreateUser(ctx, input)
	require.NoError(t, err)
	assert.True(t, snap.MustChangePassword)
	assert.Equal(t, domain.RoleApprentice, snap.Role)

	var temp string
	for _, c := range env.mailer.Calls {
		if c.Method == "SendWelcome" {
			temp = c.Arguments.String(3)
		}
	}
	require.Len(t, temp, 16)
	assert.True(t, env.deps.Hasher.IsStrong(temp))

	stored, err := env.userRepo.GetByID(ctx, snap.ID)
	require.NoError(t, err)
	ok, err := env.deps.Hasher.Verify(ctx, temp, stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	// The temporary password leads straight into the forced change.
	session := env.login(t, "laura.gomez@sena.edu.co", temp)
	assert.True(t, session.User.MustChangePassword)
	require.NoError(t, env.auth.ForceChangePassword(ctx, ForceChangePasswordInput{
		UserID:       snap.ID,
		NewPassword:  otherPassword,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}))
}

func TestCreateUser_Duplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.users.CreateUser(ctx, validCreateInput())
	require.NoError(t, err)

	sameEmail := validCreateInput()
	sameEmail.DocumentNumber = "52999999"
	_, err = env.users.CreateUser(ctx, sameEmail)
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
	assert.Contains(t, err.Error(), "email")

	sameDoc := validCreateInput()
	sameDoc.Email = "otra@sena.edu.co"
	_, err = env.users.CreateUser(ctx, sameDoc)
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
	assert.Contains(t, err.Error(), "document number")
}

func TestCreateUser_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateUserInput)
		wantErr error
	}{
		{"missing first name", func(in *CreateUserInput) { in.FirstName = "  " }, apperrors.ErrInvalidInput},
		{"bad email", func(in *CreateUserInput) { in.Email = "laura" }, apperrors.ErrInvalidInput},
		{"bad document", func(in *CreateUserInput) { in.DocumentNumber = "12a" }, apperrors.ErrInvalidInput},
		{"unknown document type", func(in *CreateUserInput) { in.DocumentType = "XX" }, apperrors.ErrInvalidInput},
		{"unknown role", func(in *CreateUserInput) { in.Role = "superuser" }, apperrors.ErrInvalidInput},
		{"weak password", func(in *CreateUserInput) { in.Password = "password" }, domain.ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			input := validCreateInput()
			tt.mutate(&input)

			_, err := env.users.CreateUser(context.Background(), input)
			assert.ErrorIs(t, err, tt.wantErr)
			env.events.AssertNotCalled(t, "PublishUserCreated", mock.Anything, mock.Anything)
		})
	}
}

// ---------------------------------------------------------------------------
// GetUser / ListUsers
// ---------------------------------------------------------------------------

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ana@sena.edu.co")

	snap, err := env.users.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@sena.edu.co", snap.Email)

	_, err = env.users.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestListUsers_Paging(t *testing.T) {
	env := newTestEnv(t)
	for _, email := range []string{"a@sena.edu.co", "b@sena.edu.co", "c@sena.edu.co", "d@sena.edu.co", "e@sena.edu.co"} {
		env.seedUser(t, email)
		env.clock.Advance(time.Minute)
	}

	page, err := env.users.ListUsers(context.Background(), ListUsersInput{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)
	// Newest first.
	assert.Equal(t, "c@sena.edu.co", page.Data[0].Email)

	none, err := env.users.ListUsers(context.Background(), ListUsersInput{Role: domain.RoleInstructor})
	require.NoError(t, err)
	assert.Empty(t, none.Data)
	assert.Zero(t, none.TotalCount)

	_, err = env.users.ListUsers(context.Background(), ListUsersInput{Role: "guest"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// ---------------------------------------------------------------------------
// UpdateUser
// ---------------------------------------------------------------------------

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.seedUser(t, "ana@sena.edu.co")
	beto := env.seedUser(t, "beto@sena.edu.co")

	// Re-submitting your own email is not a conflict.
	snap, err := env.users.UpdateUser(ctx, ana.ID, UpdateUserInput{
		FirstName: strPtr("Ana María"),
		Email:     strPtr("ANA@sena.edu.co"),
		Role:      strPtr(domain.RoleAdministrative),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana María", snap.FirstName)
	assert.Equal(t, domain.RoleAdministrative, snap.Role)
	env.events.AssertCalled(t, "PublishUserUpdated", mock.Anything, mock.Anything)

	_, err = env.users.UpdateUser(ctx, ana.ID, UpdateUserInput{Email: strPtr(beto.Email)})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	_, err = env.users.UpdateUser(ctx, ana.ID, UpdateUserInput{DocumentNumber: strPtr(beto.DocumentNumber)})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	_, err = env.users.UpdateUser(ctx, ana.ID, UpdateUserInput{Role: strPtr("root")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = env.users.UpdateUser(ctx, "missing", UpdateUserInput{})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	stored, err := env.userRepo.GetByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@sena.edu.co", stored.Email)
}

// ---------------------------------------------------------------------------
// Activation
// ---------------------------------------------------------------------------

func TestDeactivateUser_EndsSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "ana@sena.edu.co")
	session := env.login(t, "ana@sena.edu.co", testPassword)

	snap, err := env.users.DeactivateUser(ctx, u.ID, "retiro voluntario")
	require.NoError(t, err)
	assert.False(t, snap.IsActive)

	assert.False(t, env.accessValid(t, session.AccessToken))
	_, err = env.auth.RefreshToken(ctx, session.RefreshToken, "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = env.auth.Login(ctx, LoginInput{Email: "ana@sena.edu.co", Password: testPassword})
	assert.ErrorIs(t, err, domain.ErrUserInactive)

	env.events.AssertCalled(t, "PublishUserDeactivated", mock.Anything, mock.Anything, "retiro voluntario")
	env.mailer.AssertCalled(t, "SendDeactivationNotice", mock.Anything, "ana@sena.edu.co", "Ana Pérez", "retiro voluntario")

	// A second call changes nothing.
	_, err = env.users.DeactivateUser(ctx, u.ID, "otra vez")
	require.NoError(t, err)
	assert.Equal(t, 1, countCalls(&env.events.Mock, "PublishUserDeactivated"))
}

func TestActivateUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ana@sena.edu.co", inactive())

	snap, err := env.users.ActivateUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, snap.IsActive)
	env.login(t, "ana@sena.edu.co", testPassword)

	_, err = env.users.ActivateUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, countCalls(&env.events.Mock, "PublishUserUpdated"))
}

// ---------------------------------------------------------------------------
// ChangePassword
// ---------------------------------------------------------------------------

func TestChangePassword_WrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ana@sena.edu.co")

	err := env.users.ChangePassword(context.Background(), ChangePasswordInput{
		UserID:          u.ID,
		CurrentPassword: "Equivocada#99",
		NewPassword:     otherPassword,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)
	env.login(t, "ana@sena.edu.co", testPassword)
}

func TestChangePassword_KeepsCallerSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "ana@sena.edu.co")
	other := env.login(t, "ana@sena.edu.co", testPassword)
	current := env.login(t, "ana@sena.edu.co", testPassword)

	require.NoError(t, env.users.ChangePassword(ctx, ChangePasswordInput{
		UserID:          u.ID,
		CurrentPassword: testPassword,
		NewPassword:     otherPassword,
		AccessToken:     current.AccessToken,
		RefreshToken:    current.RefreshToken,
	}))

	assert.True(t, env.accessValid(t, current.AccessToken))
	assert.False(t, env.accessValid(t, other.AccessToken))
	_, err := env.auth.RefreshToken(ctx, other.RefreshToken, "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	env.login(t, "ana@sena.edu.co", otherPassword)
	env.events.AssertCalled(t, "PublishPasswordChanged", mock.Anything, mock.Anything, event.PasswordChangedByChange)
}

func TestChangePassword_AccessTokenAloneKeepsRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "ana@sena.edu.co")
	other := env.login(t, "ana@sena.edu.co", testPassword)
	current := env.login(t, "ana@sena.edu.co", testPassword)

	require.NoError(t, env.users.ChangePassword(ctx, ChangePasswordInput{
		UserID:          u.ID,
		CurrentPassword: testPassword,
		NewPassword:     otherPassword,
		AccessToken:     current.AccessToken,
	}))

	_, err := env.auth.RefreshToken(ctx, current.RefreshToken, "")
	assert.NoError(t, err)
	_, err = env.auth.RefreshToken(ctx, other.RefreshToken, "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

// ---------------------------------------------------------------------------
// DeleteUser
// ---------------------------------------------------------------------------

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "ana@sena.edu.co")
	session := env.login(t, "ana@sena.edu.co", testPassword)

	require.NoError(t, env.users.DeleteUser(ctx, u.ID))

	_, err := env.users.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = env.auth.ValidateToken(ctx, session.AccessToken)
	assert.Error(t, err)

	assert.ErrorIs(t, env.users.DeleteUser(ctx, u.ID), domain.ErrUserNotFound)
}

package domain

import (
	"fmt"
	"net/http"

	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

// Sentinels for errors.Is checks. Each wraps the generic sentinel that gives
// it its HTTP class.
var (
	ErrAuthenticationFailed = fmt.Errorf("authentication failed: %w", apperrors.ErrUnauthorized)
	ErrInvalidToken         = fmt.Errorf("invalid token: %w", apperrors.ErrUnauthorized)
	ErrExpiredToken         = fmt.Errorf("token expired: %w", ErrInvalidToken)
	ErrUserNotFound         = fmt.Errorf("user not found: %w", apperrors.ErrNotFound)
	ErrUserAlreadyExists    = fmt.Errorf("user already exists: %w", apperrors.ErrAlreadyExists)
	ErrUserInactive         = fmt.Errorf("user inactive: %w", apperrors.ErrForbidden)
	ErrInvalidPassword      = fmt.Errorf("invalid password: %w", apperrors.ErrInvalidInput)
	ErrWeakPassword         = fmt.Errorf("weak password: %w", apperrors.ErrInvalidInput)
)

// Error codes.
const (
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeExpiredToken         = "TOKEN_EXPIRED"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeUserAlreadyExists    = "USER_ALREADY_EXISTS"
	CodeUserInactive         = "USER_INACTIVE"
	CodeInvalidPassword      = "INVALID_PASSWORD"
	CodeWeakPassword         = "WEAK_PASSWORD"
)

// MsgInvalidCredentials is the single message used for every login failure
// that must not reveal which check failed.
const MsgInvalidCredentials = "invalid credentials"

func AuthenticationFailed(message string) *apperrors.AppError {
	return apperrors.New(CodeAuthenticationFailed, message, http.StatusUnauthorized, ErrAuthenticationFailed)
}

func InvalidToken(message string) *apperrors.AppError {
	return apperrors.New(CodeInvalidToken, message, http.StatusUnauthorized, ErrInvalidToken)
}

// ExpiredToken is an InvalidToken: errors.Is(err, ErrInvalidToken) holds.
func ExpiredToken(message string) *apperrors.AppError {
	return apperrors.New(CodeExpiredToken, message, http.StatusUnauthorized, ErrExpiredToken)
}

func UserNotFound(id string) *apperrors.AppError {
	return apperrors.New(CodeUserNotFound, fmt.Sprintf("user %s not found", id), http.StatusNotFound, ErrUserNotFound)
}

func UserAlreadyExists(field, value string) *apperrors.AppError {
	return apperrors.New(CodeUserAlreadyExists, fmt.Sprintf("a user with %s %q already exists", field, value), http.StatusConflict, ErrUserAlreadyExists)
}

func UserInactive() *apperrors.AppError {
	return apperrors.New(CodeUserInactive, "user account is inactive", http.StatusForbidden, ErrUserInactive)
}

func InvalidPassword(message string) *apperrors.AppError {
	return apperrors.New(CodeInvalidPassword, message, http.StatusBadRequest, ErrInvalidPassword)
}

func WeakPassword(message string) *apperrors.AppError {
	return apperrors.New(CodeWeakPassword, message, http.StatusBadRequest, ErrWeakPassword)
}

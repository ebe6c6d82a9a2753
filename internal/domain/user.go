package domain

import (
	"strings"
	"time"
)

// User is an account in the system. State changes go through its methods so
// that UpdatedAt and the related flags stay consistent.
type User struct {
	ID                     string     `json:"id"`
	FirstName              string     `json:"first_name"`
	LastName               string     `json:"last_name"`
	Email                  string     `json:"email"`
	DocumentNumber         string     `json:"document_number"`
	DocumentType           string     `json:"document_type"`
	PasswordHash           string     `json:"-"`
	Role                   string     `json:"role"`
	IsActive               bool       `json:"is_active"`
	MustChangePassword     bool       `json:"must_change_password"`
	PasswordResetToken     *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	LastLoginAt            *time.Time `json:"last_login_at,omitempty"`
	DeletedAt              *time.Time `json:"-"`
}

// FullName returns first and last name joined by a space.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) RecordLogin(now time.Time) {
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// SetPassword replaces the password hash and clears the must-change flag.
func (u *User) SetPassword(hash string, now time.Time) {
	u.PasswordHash = hash
	u.MustChangePassword = false
	u.UpdatedAt = now
}

// SetResetToken stores the digest of a password reset token.
func (u *User) SetResetToken(digest string, expiresAt, now time.Time) {
	u.PasswordResetToken = &digest
	u.PasswordResetExpiresAt = &expiresAt
	u.UpdatedAt = now
}

func (u *User) ClearResetToken(now time.Time) {
	u.PasswordResetToken = nil
	u.PasswordResetExpiresAt = nil
	u.UpdatedAt = now
}

// ResetTokenExpired reports whether the pending reset token is past its
// expiry. A user without a pending token counts as expired.
func (u *User) ResetTokenExpired(now time.Time) bool {
	if u.PasswordResetToken == nil || u.PasswordResetExpiresAt == nil {
		return true
	}
	return now.After(*u.PasswordResetExpiresAt)
}

func (u *User) Activate(now time.Time) {
	u.IsActive = true
	u.UpdatedAt = now
}

func (u *User) Deactivate(now time.Time) {
	u.IsActive = false
	u.UpdatedAt = now
}

// SoftDelete deactivates the user and marks it deleted.
func (u *User) SoftDelete(now time.Time) {
	u.IsActive = false
	u.DeletedAt = &now
	u.UpdatedAt = now
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// UserSnapshot is the public projection of a User returned to callers.
type UserSnapshot struct {
	ID                 string     `json:"id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	FullName           string     `json:"full_name"`
	Email              string     `json:"email"`
	DocumentNumber     string     `json:"document_number"`
	DocumentType       string     `json:"document_type"`
	Role               string     `json:"role"`
	IsActive           bool       `json:"is_active"`
	MustChangePassword bool       `json:"must_change_password"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
}

// Snapshot returns the public view of u.
func (u *User) Snapshot() *UserSnapshot {
	return &UserSnapshot{
		ID:                 u.ID,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		FullName:           u.FullName(),
		Email:              u.Email,
		DocumentNumber:     u.DocumentNumber,
		DocumentType:       u.DocumentType,
		Role:               u.Role,
		IsActive:           u.IsActive,
		MustChangePassword: u.MustChangePassword,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
		LastLoginAt:        u.LastLoginAt,
	}
}

// UserFilter narrows List and Count. Zero values match everything.
type UserFilter struct {
	Role       string
	IsActive   *bool
	SearchTerm string
}

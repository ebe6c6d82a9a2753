package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

// UserRepository implements repository.UserRepository using in-memory maps.
// Users are stored by value so callers never share state with the store.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]domain.User)}
}

// Create stores a copy of u. Email and document number must be unique.
func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.users[u.ID] = cloneUser(u)
	return nil
}

// GetByID returns the live user with the given ID.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

// GetByEmail returns the live user with the given email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

// GetByDocumentNumber returns the live user with the given document number.
func (r *UserRepository) GetByDocumentNumber(_ context.Context, number string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.DocumentNumber == number })
}

// GetByResetToken returns the live user holding the reset token digest.
func (r *UserRepository) GetByResetToken(_ context.Context, tokenHash string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool {
		return u.PasswordResetToken != nil && *u.PasswordResetToken == tokenHash
	})
}

// Update replaces the stored copy of u. The last writer wins.
func (r *UserRepository) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok || stored.IsDeleted() {
		return apperrors.NotFound("user", u.ID)
	}
	if err := r.checkUnique(u); err != nil {
		return err
	}
	next := cloneUser(u)
	next.CreatedAt = stored.CreatedAt
	r.users[u.ID] = next
	return nil
}

// Delete soft-deletes the user.
func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.IsDeleted() {
		return apperrors.NotFound("user", id)
	}
	u.SoftDelete(time.Now().UTC())
	r.users[id] = u
	return nil
}

// List mirrors the SQL ordering: newest first, ties broken by ID.
func (r *UserRepository) List(_ context.Context, filter domain.UserFilter, offset, limit int) ([]domain.User, error) {
	matched := r.filter(filter)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if offset >= len(matched) {
		return []domain.User{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

// Count returns how many live users match filter.
func (r *UserRepository) Count(_ context.Context, filter domain.UserFilter) (int, error) {
	return len(r.filter(filter)), nil
}

// ExistsByEmail reports whether a live user other than excludeID has email.
func (r *UserRepository) ExistsByEmail(_ context.Context, email, excludeID string) (bool, error) {
	_, err := r.find(func(u *domain.User) bool { return u.Email == email && u.ID != excludeID })
	return err == nil, nil
}

// ExistsByDocumentNumber reports whether a live user other than excludeID has
// the document number.
func (r *UserRepository) ExistsByDocumentNumber(_ context.Context, number, excludeID string) (bool, error) {
	_, err := r.find(func(u *domain.User) bool { return u.DocumentNumber == number && u.ID != excludeID })
	return err == nil, nil
}

func (r *UserRepository) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.IsDeleted() || !match(&u) {
			continue
		}
		found := cloneUser(&u)
		return &found, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *UserRepository) filter(f domain.UserFilter) []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		if u.IsDeleted() {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if term != "" && !matchesTerm(&u, term) {
			continue
		}
		out = append(out, cloneUser(&u))
	}
	return out
}

// checkUnique must be called with the write lock held.
func (r *UserRepository) checkUnique(u *domain.User) error {
	for _, other := range r.users {
		if other.ID == u.ID || other.IsDeleted() {
			continue
		}
		if other.Email == u.Email {
			return domain.UserAlreadyExists("email", u.Email)
		}
		if other.DocumentNumber == u.DocumentNumber {
			return domain.UserAlreadyExists("document number", u.DocumentNumber)
		}
	}
	return nil
}

func matchesTerm(u *domain.User, term string) bool {
	for _, field := range []string{u.FirstName, u.LastName, u.Email, u.DocumentNumber} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func cloneUser(u *domain.User) domain.User {
	c := *u
	c.PasswordResetToken = clonePtr(u.PasswordResetToken)
	c.PasswordResetExpiresAt = clonePtr(u.PasswordResetExpiresAt)
	c.LastLoginAt = clonePtr(u.LastLoginAt)
	c.DeletedAt = clonePtr(u.DeletedAt)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
)

const userColumns = `id, first_name, last_name, email, document_number, document_type, password_hash, role,
		is_active, must_change_password, password_reset_token, password_reset_expires_at,
		created_at, updated_at, last_login_at, deleted_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.FirstName,
		u.LastName,
		u.Email,
		u.DocumentNumber,
		u.DocumentType,
		u.PasswordHash,
		u.Role,
		u.IsActive,
		u.MustChangePassword,
		u.PasswordResetToken,
		u.PasswordResetExpiresAt,
		u.CreatedAt,
		u.UpdatedAt,
		u.LastLoginAt,
		u.DeletedAt,
	)
	if err != nil {
		return r.mapWriteError(err, u, "insert user")
	}
	return nil
}

// GetByID retrieves a user by ID, skipping soft-deleted rows.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByEmail retrieves a user by email, skipping soft-deleted rows.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

// GetByDocumentNumber retrieves a user by document number, skipping
// soft-deleted rows.
func (r *UserRepository) GetByDocumentNumber(ctx context.Context, number string) (*domain.User, error) {
	return r.getOne(ctx, "document_number = $1", number)
}

// GetByResetToken retrieves the user holding the reset token digest.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	return r.getOne(ctx, "password_reset_token = $1", tokenHash)
}

// Update writes every mutable column of u.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	query := `
		UPDATE users
		SET first_name = $1, last_name = $2, email = $3, document_number = $4, document_type = $5,
		    password_hash = $6, role = $7, is_active = $8, must_change_password = $9,
		    password_reset_token = $10, password_reset_expires_at = $11,
		    updated_at = $12, last_login_at = $13, deleted_at = $14
		WHERE id = $15 AND deleted_at IS NULL`

	ct, err := r.db.Exec(ctx, query,
		u.FirstName,
		u.LastName,
		u.Email,
		u.DocumentNumber,
		u.DocumentType,
		u.PasswordHash,
		u.Role,
		u.IsActive,
		u.MustChangePassword,
		u.PasswordResetToken,
		u.PasswordResetExpiresAt,
		u.UpdatedAt,
		u.LastLoginAt,
		u.DeletedAt,
		u.ID,
	)
	if err != nil {
		return r.mapWriteError(err, u, "update user")
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

// Delete soft-deletes a user.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET deleted_at = NOW(), is_active = false, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// List returns a page of users ordered by creation time, newest first.
func (r *UserRepository) List(ctx context.Context, filter domain.UserFilter, offset, limit int) ([]domain.User, error) {
	where, args := filterClause(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, userColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

// Count returns the number of users matching filter.
func (r *UserRepository) Count(ctx context.Context, filter domain.UserFilter) (int, error) {
	where, args := filterClause(filter)

	var n int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ExistsByEmail reports whether another user already uses email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return r.exists(ctx, "email", email, excludeID)
}

// ExistsByDocumentNumber reports whether another user already uses the
// document number.
func (r *UserRepository) ExistsByDocumentNumber(ctx context.Context, number, excludeID string) (bool, error) {
	return r.exists(ctx, "document_number", number, excludeID)
}

// exists checks column against value. column is one of a fixed set of
// identifiers, never user input.
func (r *UserRepository) exists(ctx context.Context, column, value, excludeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE ` + column + ` = $1 AND deleted_at IS NULL AND ($2 = '' OR id::text <> $2))`

	var found bool
	if err := r.db.QueryRow(ctx, query, value, excludeID).Scan(&found); err != nil {
		return false, fmt.Errorf("check user %s: %w", column, err)
	}
	return found, nil
}

func (r *UserRepository) getOne(ctx context.Context, cond string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + cond + ` AND deleted_at IS NULL`

	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) mapWriteError(err error, u *domain.User, op string) error {
	if constraint, ok := uniqueViolation(err); ok {
		if strings.Contains(constraint, "document") {
			return domain.UserAlreadyExists("document number", u.DocumentNumber)
		}
		return domain.UserAlreadyExists("email", u.Email)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// filterClause builds the WHERE clause shared by List and Count.
func filterClause(f domain.UserFilter) (string, []any) {
	conds := []string{"deleted_at IS NULL"}
	var args []any

	if f.Role != "" {
		args = append(args, f.Role)
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR document_number ILIKE $%d)", n, n, n, n))
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.DocumentNumber,
		&u.DocumentType,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.MustChangePassword,
		&u.PasswordResetToken,
		&u.PasswordResetExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.LastLoginAt,
		&u.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

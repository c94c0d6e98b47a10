package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/henriquegoncalvesdev/credipesca/pkg/database"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
)

const emailConstraint = "users_email_key"

const userColumns = `id, email, password_hash, name, role, is_active, created_at, updated_at`

const (
	queryInsertUser = `
		INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	queryUserByID    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	queryUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	queryUpdatePassword = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`

	querySetActive = `
		UPDATE users SET is_active = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + userColumns

	queryCountUsers = `SELECT count(*) FROM users`
	queryListUsers  = `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
)

// UserRepository implements repository.UserDirectory using PostgreSQL.
type UserRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewUserRepository creates a new PostgreSQL-backed user directory.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// Create inserts a new user into the database. Users with a role outside
// domain.ValidRoles are refused before reaching the store.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	if !domain.IsValidRole(u.Role) {
		return fmt.Errorf("insert user: %w %q", domain.ErrUnknownRole, u.Role)
	}

	ctx, end := database.TraceQuery(ctx, "CreateUser", queryInsertUser)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, queryInsertUser,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.Name,
		u.Role,
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, emailConstraint) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "GetUserByID", queryUserByID)
	defer func() { end(err) }()

	return scanUser(r.db.QueryRow(ctx, queryUserByID, id))
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", queryUserByEmail)
	defer func() { end(err) }()

	return scanUser(r.db.QueryRow(ctx, queryUserByEmail, email))
}

// UpdatePassword replaces the password hash of the given user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (err error) {
	ctx, end := database.TraceQuery(ctx, "UpdateUserPassword", queryUpdatePassword)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, queryUpdatePassword, passwordHash, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetActive toggles the active flag of the given user.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "SetUserActive", querySetActive)
	defer func() { end(err) }()

	return scanUser(r.db.QueryRow(ctx, querySetActive, active, r.now().UTC(), id))
}

// List returns users ordered by creation date, newest first.
func (r *UserRepository) List(ctx context.Context, offset, limit int) (users []domain.User, total int, err error) {
	ctx, end := database.TraceQuery(ctx, "ListUsers", queryListUsers)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, queryCountUsers).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx, queryListUsers, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users = []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate user rows: %w", err)
	}

	return users, total, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %w", domain.ErrUserNotFound, err)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if !domain.IsValidRole(u.Role) {
		return nil, fmt.Errorf("scan user %s: %w %q", u.ID, domain.ErrUnknownRole, u.Role)
	}
	return &u, nil
}

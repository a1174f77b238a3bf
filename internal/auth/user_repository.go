package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// maxSearchResults caps Search.
const maxSearchResults = 50

// UserRepository persists accounts. It is also the PrincipalStore of the
// authentication pipeline.
type UserRepository interface {
	PrincipalStore
	Create(ctx context.Context, user *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	ListByUsernames(ctx context.Context, usernames []string) ([]User, error)
	ListByIDs(ctx context.Context, ids []string) ([]User, error)
	Search(ctx context.Context, term, excludeID string, limit int) ([]User, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "id, name, username, email, password_hash, role, created_at, updated_at"

// Create inserts a new account. The ID is generated if empty. Duplicate
// usernames and emails map to ErrUsernameExists and ErrEmailExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()
	}
	if !user.Role.Valid() {
		return fmt.Errorf("creating user: %w: %q", ErrInvalidRole, user.Role)
	}

	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt = now
	user.UpdatedAt = now
	stamp := now.Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Username, user.Email,
		user.PasswordHash, string(user.Role), stamp, stamp,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			if strings.HasSuffix(col, ".email") {
				return ErrEmailExists
			}
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByUsername retrieves a user by username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? COLLATE NOCASE", email)
}

// GetByLogin resolves a login identifier that may be either an email or
// a username. Email wins when both would match different accounts.
func (r *SQLiteUserRepository) GetByLogin(ctx context.Context, login string) (*User, error) {
	u, err := r.GetByEmail(ctx, login)
	if err == nil || !errors.Is(err, ErrUserNotFound) {
		return u, err
	}
	return r.GetByUsername(ctx, login)
}

// ListByUsernames returns the accounts matching usernames. Unknown names
// are skipped; callers compare lengths to detect them.
func (r *SQLiteUserRepository) ListByUsernames(ctx context.Context, usernames []string) ([]User, error) {
	return r.listIn(ctx, "username", usernames)
}

// ListByIDs returns the accounts matching ids, skipping unknown ones.
func (r *SQLiteUserRepository) ListByIDs(ctx context.Context, ids []string) ([]User, error) {
	return r.listIn(ctx, "id", ids)
}

func (r *SQLiteUserRepository) listIn(ctx context.Context, column string, values []string) ([]User, error) {
	if len(values) == 0 {
		return []User{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}

	// column is one of two literals above.
	query := "SELECT " + userColumns + " FROM users WHERE " + column + " IN (" + placeholders + ") ORDER BY username" //nolint:gosec // fixed column name
	return r.queryUsers(ctx, query, args...)
}

// Search matches term against name, username and email, excluding
// excludeID (the caller).
func (r *SQLiteUserRepository) Search(ctx context.Context, term, excludeID string, limit int) ([]User, error) {
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"

	return r.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id <> ?
		   AND (name LIKE ? ESCAPE '\' OR username LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')
		 ORDER BY username
		 LIMIT ?`,
		excludeID, pattern, pattern, pattern, limit,
	)
}

// Delete removes a user account by ID.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, query, args...))
}

func (r *SQLiteUserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var (
		u                    User
		role                 string
		createdAt, updatedAt string
	)

	err := s.Scan(&u.ID, &u.Name, &u.Username, &u.Email,
		&u.PasswordHash, &role, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &u, nil
}

// uniqueViolation reports a SQLite UNIQUE failure and the offending
// "table.column" taken from the driver message.
func uniqueViolation(err error) (string, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return "", false
	}
	_, col, _ := strings.Cut(sqliteErr.Error(), "UNIQUE constraint failed: ")
	return strings.TrimSpace(col), true
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

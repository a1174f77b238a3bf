package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// revocationQueries is the per-dialect statement set of SQLRevocationStore.
type revocationQueries struct {
	insert string
	exists string
	prune  string
	count  string
}

var sqliteRevocationQueries = revocationQueries{
	insert: `INSERT OR IGNORE INTO revoked_tokens (token_hash, expires_at, revoked_at) VALUES (?, ?, ?)`,
	exists: `SELECT 1 FROM revoked_tokens WHERE token_hash = ?`,
	prune:  `DELETE FROM revoked_tokens WHERE expires_at <= ?`,
	count:  `SELECT COUNT(*) FROM revoked_tokens`,
}

var postgresRevocationQueries = revocationQueries{
	insert: `INSERT INTO revoked_tokens (token_hash, expires_at, revoked_at) VALUES ($1, $2, $3) ON CONFLICT (token_hash) DO NOTHING`,
	exists: `SELECT 1 FROM revoked_tokens WHERE token_hash = $1`,
	prune:  `DELETE FROM revoked_tokens WHERE expires_at <= $1`,
	count:  `SELECT COUNT(*) FROM revoked_tokens`,
}

// PostgresRevocationSchema creates the revoked_tokens table on a shared
// PostgreSQL database. SQLite gets the same table from the migrations.
const PostgresRevocationSchema = `
CREATE TABLE IF NOT EXISTS revoked_tokens (
    token_hash TEXT PRIMARY KEY,
    expires_at BIGINT NOT NULL,
    revoked_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires_at ON revoked_tokens (expires_at);
`

// SQLRevocationStore persists revoked tokens in a revoked_tokens table.
// Rows are keyed by HashToken(token); expiry is stored in unix seconds.
// Each statement autocommits, so a recorded token is visible to every
// later lookup on any connection.
type SQLRevocationStore struct {
	db      *sql.DB
	queries revocationQueries
	now     func() time.Time
}

// NewSQLiteRevocationStore creates a store on the primary SQLite database.
func NewSQLiteRevocationStore(db *sql.DB) *SQLRevocationStore {
	return &SQLRevocationStore{db: db, queries: sqliteRevocationQueries, now: time.Now}
}

// NewPostgresRevocationStore creates a store on a PostgreSQL database
// shared by several API instances.
func NewPostgresRevocationStore(db *sql.DB) *SQLRevocationStore {
	return &SQLRevocationStore{db: db, queries: postgresRevocationQueries, now: time.Now}
}

// EnsurePostgresSchema creates the revoked_tokens table when missing.
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, PostgresRevocationSchema); err != nil {
		return fmt.Errorf("creating revoked_tokens table: %w", err)
	}
	return nil
}

// Record implements RevocationStore.
func (s *SQLRevocationStore) Record(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.queries.insert,
		HashToken(token), expiresAt.Unix(), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording revoked token: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (s *SQLRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.queries.exists, HashToken(token)).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking revoked token: %w", err)
	default:
		return true, nil
	}
}

// PruneExpired implements RevocationStore.
func (s *SQLRevocationStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.queries.prune, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning revoked tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning revoked tokens: %w", err)
	}
	return n, nil
}

// Count returns the number of stored records.
func (s *SQLRevocationStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.queries.count).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting revoked tokens: %w", err)
	}
	return n, nil
}

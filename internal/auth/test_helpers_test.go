package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/database"
	_ "github.com/rodolfodiegosilva/iot-system-api/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func init() {
	// Cheap hashes keep the suite fast; production parameters are
	// covered by the PHC round-trip in password_test.go.
	hashParams.time = 1
	hashParams.memory = 8 * 1024
}

// testDB opens a temp-file SQLite database with all migrations applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// seedTestUser inserts an account whose password is "password123".
func seedTestUser(t *testing.T, repo *SQLiteUserRepository, username string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	u := &User{
		Name:         "Test " + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return u
}

// testClock is a settable clock for TokenService.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// mapPrincipals is an in-memory PrincipalStore.
type mapPrincipals map[string]*User

func (m mapPrincipals) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := m[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

package device

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/database"
	_ "github.com/rodolfodiegosilva/iot-system-api/migrations"
)

const testPublicURL = "https://iot.example.com"

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

type fixture struct {
	db    *sql.DB
	repo  *SQLiteRepository
	users *auth.SQLiteUserRepository
	svc   *Service
	pub   *fakePublisher
	rec   *fakeRecorder
	alice *auth.User
	bob   *auth.User
	admin *auth.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	f := &fixture{
		db:    db,
		repo:  NewSQLiteRepository(db, testPublicURL+"/"),
		users: auth.NewUserRepository(db),
		pub:   &fakePublisher{},
		rec:   &fakeRecorder{},
	}
	f.svc = NewService(f.repo, f.users)
	f.svc.SetPublisher(f.pub, 1)
	f.svc.SetStatusRecorder(f.rec)

	f.alice = createUser(t, f.users, "alice", auth.RoleUser)
	f.bob = createUser(t, f.users, "bob", auth.RoleUser)
	f.admin = createUser(t, f.users, "root", auth.RoleAdmin)
	return f
}

func createUser(t *testing.T, users *auth.SQLiteUserRepository, username string, role auth.Role) *auth.User {
	t.Helper()
	u := &auth.User{
		Name:         "Test " + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "unused",
		Role:         role,
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

func as(u *auth.User) context.Context {
	return auth.WithSecurityContext(context.Background(), auth.SecurityContext{Principal: u, Token: "test"})
}

type published struct {
	topic   string
	payload []byte
	qos     byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: payload, qos: qos})
	return nil
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

type statusPoint struct {
	code string
	on   bool
}

type fakeRecorder struct {
	mu     sync.Mutex
	points []statusPoint
}

func (r *fakeRecorder) WriteDeviceStatus(code string, on bool, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, statusPoint{code: code, on: on})
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

var errBroker = errors.New("broker unreachable")

package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/database"
	_ "github.com/rodolfodiegosilva/iot-system-api/migrations"
)

type fixture struct {
	repo    *SQLiteRepository
	devices *device.Service
	svc     *Service
	rec     *fakeRecorder
	alice   *auth.User
	bob     *auth.User
	admin   *auth.User
}

func newFixture(t *testing.T) *fixture {
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

	users := auth.NewUserRepository(db.DB)
	f := &fixture{
		repo:    NewSQLiteRepository(db.DB),
		devices: device.NewService(device.NewSQLiteRepository(db.DB, "http://localhost"), users),
		rec:     &fakeRecorder{},
	}
	f.svc = NewService(f.repo, f.devices, nil)
	f.svc.SetStatusRecorder(f.rec)

	f.alice = createUser(t, users, "alice", auth.RoleUser)
	f.bob = createUser(t, users, "bob", auth.RoleUser)
	f.admin = createUser(t, users, "root", auth.RoleAdmin)
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

func (f *fixture) device(t *testing.T, owner *auth.User, name string) *device.Device {
	t.Helper()
	d, err := f.devices.Create(as(owner), device.Request{Name: name})
	if err != nil {
		t.Fatalf("creating device: %v", err)
	}
	return d
}

func as(u *auth.User) context.Context {
	return auth.WithSecurityContext(context.Background(), auth.SecurityContext{Principal: u, Token: "test"})
}

type fakeRecorder struct {
	codes []string
}

func (r *fakeRecorder) WriteMonitoringStatus(code, _ string, _ bool, _ time.Time) {
	r.codes = append(r.codes, code)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rodolfodiegosilva/iot-system-api/internal/audit"
	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/config"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/database"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/logging"
	"github.com/rodolfodiegosilva/iot-system-api/internal/monitoring"
	_ "github.com/rodolfodiegosilva/iot-system-api/migrations"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPassword = "password123"
)

// testEnv is a Server wired to real services over a temp-file SQLite
// database.
type testEnv struct {
	srv         *Server
	router      http.Handler
	users       *auth.SQLiteUserRepository
	tokens      *auth.TokenService
	revocations *auth.MemoryRevocationStore
	events      *fakeEvents

	alice *auth.User
	bob   *auth.User
	admin *auth.User
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testDeps() Deps {
	return Deps{
		Config: config.APIConfig{
			Host:      "127.0.0.1",
			Port:      0,
			PublicURL: "http://localhost:8080",
			Timeouts:  config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret},
		},
		Version: "test",
	}
}

// newTestEnv builds the environment. mutate may adjust Deps before New
// runs; services are already set at that point.
func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
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

	log := testLogger()
	env := &testEnv{
		users:       auth.NewUserRepository(db.DB),
		tokens:      auth.NewTokenService(testSecret),
		revocations: auth.NewMemoryRevocationStore(),
		events:      &fakeEvents{connected: true},
	}

	devices := device.NewService(device.NewSQLiteRepository(db.DB, "http://localhost:8080/api/v1"), env.users)
	deps := testDeps()
	deps.Logger = log
	deps.Authenticator = auth.NewAuthenticator(env.tokens, env.revocations, env.users)
	deps.Accounts = auth.NewService(env.users, env.tokens, env.revocations, log.Logger)
	deps.Devices = devices
	deps.Monitorings = monitoring.NewService(monitoring.NewSQLiteRepository(db.DB), devices, log.Logger)
	deps.Audit = audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log.Logger)
	deps.Sweeper = auth.NewRevocationSweeper(env.revocations, 0, log.Logger)
	deps.Events = env.events
	deps.DB = db.DB
	for _, m := range mutate {
		m(&deps)
	}

	env.srv, err = New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.router = env.srv.buildRouter()

	env.alice = env.createUser(t, "alice", auth.RoleUser)
	env.bob = env.createUser(t, "bob", auth.RoleUser)
	env.admin = env.createUser(t, "root", auth.RoleAdmin)
	return env
}

var (
	passwordHashOnce sync.Once
	passwordHash     string
	passwordHashErr  error
)

// testPasswordHash hashes testPassword once for the whole package.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	passwordHashOnce.Do(func() {
		passwordHash, passwordHashErr = auth.HashPassword(testPassword)
	})
	if passwordHashErr != nil {
		t.Fatalf("HashPassword() error = %v", passwordHashErr)
	}
	return passwordHash
}

func (e *testEnv) createUser(t *testing.T, username string, role auth.Role) *auth.User {
	t.Helper()
	u := &auth.User{
		Name:         "Test " + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: testPasswordHash(t),
		Role:         role,
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

func (e *testEnv) token(t *testing.T, u *auth.User) string {
	t.Helper()
	tok, err := e.tokens.Issue(u)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return tok
}

// do sends a request through the router. body may be nil, a string sent
// verbatim, or a value encoded as JSON.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createDevice creates a device as owner through the API.
func (e *testEnv) createDevice(t *testing.T, owner *auth.User, name string, members ...string) *device.Device {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/devices", e.token(t, owner), map[string]any{
		"deviceName": name,
		"usernames":  members,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create device status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[device.Device](t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) *T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return &v
}

// assertError checks status and the {status,message,timestamp} body.
func assertError(t *testing.T, w *httptest.ResponseRecorder, want int) *Error {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
	e := decode[Error](t, w)
	if e.Status != want {
		t.Errorf("body status = %d, want %d", e.Status, want)
	}
	if e.Message == "" {
		t.Error("body message is empty")
	}
	if e.Timestamp == "" {
		t.Error("body timestamp is empty")
	}
	return e
}

// fakeEvents records mirrored events.
type fakeEvents struct {
	mu        sync.Mutex
	connected bool
	topics    []string
	err       error
}

func (f *fakeEvents) PublishJSON(topic string, _ any, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeEvents) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeEvents) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

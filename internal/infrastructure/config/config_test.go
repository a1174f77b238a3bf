package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
  public_url: "https://iot.example.com"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
  revocation:
    backend: memory
    sweep_interval: 30
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	if cfg.API.PublicURL != "https://iot.example.com" {
		t.Errorf("API.PublicURL = %q, want %q", cfg.API.PublicURL, "https://iot.example.com")
	}
	if cfg.Security.Revocation.Backend != RevocationBackendMemory {
		t.Errorf("Revocation.Backend = %q, want %q", cfg.Security.Revocation.Backend, RevocationBackendMemory)
	}
	if got := cfg.Security.Revocation.SweepIntervalDuration(); got != 30*time.Second {
		t.Errorf("SweepIntervalDuration() = %v, want 30s", got)
	}
}

func TestLoad_DefaultsSurviveMissingSections(t *testing.T) {
	configPath := writeConfig(t, `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.Revocation.Backend != RevocationBackendSQLite {
		t.Errorf("Revocation.Backend = %q, want %q", cfg.Security.Revocation.Backend, RevocationBackendSQLite)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT should be disabled by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for missing jwt secret, got nil")
	}
	if !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("error = %v, want mention of security.jwt.secret", err)
	}
}

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "/data/iot.db"},
		MQTT:     MQTTConfig{QoS: 1},
		API:      APIConfig{Port: 8080},
		Security: SecurityConfig{
			JWT:        JWTConfig{Secret: validJWTSecret},
			Revocation: RevocationConfig{Backend: RevocationBackendSQLite},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{
			name:   "trusted proxies",
			mutate: func(c *Config) { c.API.TrustedProxies = []string{"10.0.0.1", "172.16.0.0/12", "::1"} },
		},
		{name: "malformed trusted proxy", mutate: func(c *Config) { c.API.TrustedProxies = []string{"10.0.0.300"} }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{name: "unknown revocation backend", mutate: func(c *Config) { c.Security.Revocation.Backend = "redis" }, wantErr: true},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Security.Revocation.Backend = RevocationBackendPostgres },
			wantErr: true,
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Security.Revocation.Backend = RevocationBackendPostgres
				c.Security.Revocation.PostgresDSN = "postgres://localhost/iot"
			},
		},
		{name: "negative sweep interval", mutate: func(c *Config) { c.Security.Revocation.SweepInterval = -1 }, wantErr: true},
		{
			name: "rate limit enabled without budget",
			mutate: func(c *Config) {
				c.Security.RateLimit = RateLimitConfig{Enabled: true}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIConfig_TrustedProxyPrefixes(t *testing.T) {
	api := APIConfig{TrustedProxies: []string{"10.0.0.1", " 192.168.1.77/24 ", "::ffff:172.16.0.5"}}

	prefixes, err := api.TrustedProxyPrefixes()
	if err != nil {
		t.Fatalf("TrustedProxyPrefixes() error = %v", err)
	}
	want := []string{"10.0.0.1/32", "192.168.1.0/24", "172.16.0.5/32"}
	if len(prefixes) != len(want) {
		t.Fatalf("len(prefixes) = %d, want %d", len(prefixes), len(want))
	}
	for i, p := range prefixes {
		if p.String() != want[i] {
			t.Errorf("prefixes[%d] = %s, want %s", i, p, want[i])
		}
	}

	if _, err := (APIConfig{TrustedProxies: []string{"proxy.internal"}}).TrustedProxyPrefixes(); err == nil {
		t.Error("TrustedProxyPrefixes() should reject host names")
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("IOTSYS_DATABASE_PATH", "/custom/path.db")
	t.Setenv("IOTSYS_MQTT_HOST", "mqtt.example.com")
	t.Setenv("IOTSYS_MQTT_USERNAME", "testuser")
	t.Setenv("IOTSYS_MQTT_PASSWORD", "testpass")
	t.Setenv("IOTSYS_API_HOST", "192.168.1.1")
	t.Setenv("IOTSYS_API_PORT", "9090")
	t.Setenv("IOTSYS_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("IOTSYS_JWT_SECRET", "jwt-secret")
	t.Setenv("IOTSYS_REVOCATION_POSTGRES_DSN", "postgres://db/iot")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"Security.Revocation.PostgresDSN", cfg.Security.Revocation.PostgresDSN, "postgres://db/iot"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestApplyEnvOverrides_IgnoresBadPort(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("IOTSYS_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Security.Revocation.SweepInterval <= 0 {
		t.Error("defaultConfig should sweep revocations periodically")
	}
}

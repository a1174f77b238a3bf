package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"
)

func TestIPRateLimiter(t *testing.T) {
	l := newIPRateLimiter(60, 2)

	if !l.allow("10.0.0.1") || !l.allow("10.0.0.1") {
		t.Fatal("burst requests refused")
	}
	if l.allow("10.0.0.1") {
		t.Error("request over burst allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Error("other client limited by first client's bucket")
	}

	l.clean(time.Now().Add(limiterIdleTTL + time.Second))
	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("buckets after clean = %d, want 0", n)
	}
}

func TestRateLimit_Login(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Security.RateLimit.Enabled = true
		d.Security.RateLimit.RequestsPerMinute = 1
		d.Security.RateLimit.Burst = 2
	})

	login := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"username":"alice","password":"wrong-password"}`))
		req.RemoteAddr = ip + ":40000"
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	for i := range 2 {
		if w := login("192.0.2.1"); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want %d", i+1, w.Code, http.StatusUnauthorized)
		}
	}

	w := login("192.0.2.1")
	assertError(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	if w := login("192.0.2.2"); w.Code != http.StatusUnauthorized {
		t.Errorf("other client status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// Authenticated routes are not limited.
	token := env.token(t, env.alice)
	for range 5 {
		if w := env.do(t, http.MethodGet, "/api/v1/devices", token, nil); w.Code != http.StatusOK {
			t.Fatalf("devices status = %d", w.Code)
		}
	}
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Security.RateLimit.Enabled = true
		d.Security.RateLimit.RequestsPerMinute = 1
		d.Security.RateLimit.Burst = 2
	})

	var last int
	for i := range 5 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"username":"alice","password":"wrong-password"}`))
		req.RemoteAddr = "203.0.113.9:51000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after rotating X-Forwarded-For = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestRateLimit_TrustedProxyForwardsClients(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.TrustedProxies = []string{"10.0.0.0/8"}
		d.Security.RateLimit.Enabled = true
		d.Security.RateLimit.RequestsPerMinute = 1
		d.Security.RateLimit.Burst = 2
	})

	login := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"username":"alice","password":"wrong-password"}`))
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w.Code
	}

	for range 2 {
		login("192.0.2.50")
	}
	if code := login("192.0.2.50"); code != http.StatusTooManyRequests {
		t.Errorf("forwarded client status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := login("192.0.2.51"); code != http.StatusUnauthorized {
		t.Errorf("second forwarded client status = %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestClientIP(t *testing.T) {
	srv := &Server{proxies: []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
	}}

	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"trusted proxy", "203.0.113.7", "10.0.0.1:1234", "203.0.113.7"},
		{"trusted proxy chain", "198.51.100.1, 203.0.113.7, 10.0.0.2", "10.0.0.1:1234", "203.0.113.7"},
		{"trusted ipv6 proxy", "203.0.113.8", "[::1]:1234", "203.0.113.8"},
		{"trusted proxy without header", "", "10.0.0.1:1234", "10.0.0.1"},
		{"untrusted peer", "203.0.113.7", "198.51.100.4:5678", "198.51.100.4"},
		{"remote host", "", "198.51.100.4:5678", "198.51.100.4"},
		{"remote without port", "", "198.51.100.4", "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := srv.clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_RejectsMalformedTrustedProxy(t *testing.T) {
	env := newTestEnv(t)
	d := testDeps()
	d.Logger = env.srv.logger
	d.Authenticator = env.srv.authn
	d.Accounts = env.srv.accounts
	d.Devices = env.srv.devices
	d.Monitorings = env.srv.monitorings
	d.Config.TrustedProxies = []string{"gateway.local"}

	if _, err := New(d); err == nil {
		t.Error("New() with malformed trusted proxy error = nil, want error")
	}
}

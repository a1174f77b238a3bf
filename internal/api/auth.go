package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/audit"
	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

type loginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identifier returns the first non-empty of login, username and email.
func (r loginRequest) identifier() string {
	for _, v := range []string{r.Login, r.Username, r.Email} {
		if v != "" {
			return v
		}
	}
	return ""
}

type sessionResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"tokenType"`
	ExpiresIn int        `json:"expiresIn"`
	User      *auth.User `json:"user"`
}

func newSessionResponse(sess *auth.Session) sessionResponse {
	return sessionResponse{
		Token:     sess.Token,
		TokenType: "Bearer",
		ExpiresIn: int(auth.TokenLifetime.Seconds()),
		User:      sess.User,
	}
}

// handleRegister creates a USER account and returns its first token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionRegister,
		EntityType: audit.EntityUser,
		EntityID:   sess.User.ID,
		UserID:     sess.User.ID,
		Details:    map[string]any{"username": sess.User.Username},
	})
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

// handleLogin authenticates by username or email.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	login := req.identifier()
	sess, err := s.accounts.Login(r.Context(), login, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Info("login failed", "login", login, "remote", s.clientIP(r))
			s.audit.Record(r.Context(), audit.AuditLog{
				Action:     audit.ActionLoginFailed,
				EntityType: audit.EntityUser,
				Details:    map[string]any{"login": login, "remote": s.clientIP(r)},
			})
		}
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   sess.User.ID,
		UserID:     sess.User.ID,
	})
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handleLogout revokes the bearer token, if any. Requests without a token
// succeed too.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Logout(r.Context(), r.Header.Get("Authorization")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if p := auth.PrincipalFrom(r.Context()); p != nil {
		s.audit.Record(r.Context(), audit.AuditLog{
			Action:     audit.ActionLogout,
			EntityType: audit.EntityUser,
			EntityID:   p.ID,
			UserID:     p.ID,
		})
	}
	writeMessage(w, "Logout successful")
}

// handleCurrentUser returns the authenticated principal.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.Current(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ticketStore holds pending single-use WebSocket tickets. A ticket carries
// the bearer token it was issued for; the pipeline runs again when it is
// redeemed.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	token     string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

func (t *ticketStore) issue(token string) string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	ticket := hex.EncodeToString(b)

	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{token: token, expiresAt: time.Now().Add(ticketTTL)}
	t.mu.Unlock()
	return ticket
}

// redeem consumes a ticket and returns its token.
func (t *ticketStore) redeem(ticket string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(t.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.token, true
}

func (t *ticketStore) clean(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.clean(now)
		}
	}
}

// handleWSTicket issues a ticket so browser clients can open the
// WebSocket without putting the token in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.tickets.issue(auth.TokenFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":    ticket,
		"expiresIn": int(ticketTTL.Seconds()),
	})
}

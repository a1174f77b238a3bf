package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// RevocationStore remembers tokens that were logged out before they
// expired. Once Record returns, every later IsRevoked for the same token
// reports true until PruneExpired drops it after its expiry.
type RevocationStore interface {
	// Record revokes token. Recording a token twice is a no-op.
	Record(ctx context.Context, token string, expiresAt time.Time) error

	// IsRevoked reports whether token has been recorded.
	IsRevoked(ctx context.Context, token string) (bool, error)

	// PruneExpired deletes records whose expiry is at or before now and
	// returns how many were removed.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// HashToken returns the hex SHA-256 of a token's canonical form. SQL
// backends store this digest instead of the token itself.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(canonicalToken(raw)))
	return hex.EncodeToString(h[:])
}

// MemoryRevocationStore keeps revoked tokens in a map keyed by their
// canonical form. It suits a single instance and tests; records are lost
// on restart.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewMemoryRevocationStore creates an empty in-memory store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time)}
}

// Record implements RevocationStore.
func (s *MemoryRevocationStore) Record(_ context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := canonicalToken(token)
	if _, ok := s.revoked[key]; !ok {
		s.revoked[key] = expiresAt
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[canonicalToken(token)]
	return ok, nil
}

// PruneExpired implements RevocationStore.
func (s *MemoryRevocationStore) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, token)
			n++
		}
	}
	return n, nil
}

// Len returns the number of records held.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revoked)
}

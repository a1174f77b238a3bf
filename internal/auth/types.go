package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// usernamePattern: alphanumeric, dots, hyphens, underscores, 3-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is the authorisation tier of a principal. The set is closed.
type Role string

const (
	// RoleUser reaches only the resources it created or is a member of.
	RoleUser Role = "USER"

	// RoleAdmin bypasses ownership checks.
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// User is an account and, once a request is authenticated, its principal.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Ownership is the creator and member set of a protected resource.
// CreatedBy is always contained in Members.
type Ownership struct {
	CreatedBy string
	Members   []string
}

// HasMember reports whether userID is the creator or a member.
func (o Ownership) HasMember(userID string) bool {
	if userID == "" {
		return false
	}
	if o.CreatedBy == userID {
		return true
	}
	for _, m := range o.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Resource is anything guarded by the ownership policy.
type Resource interface {
	Ownership() Ownership
}

// WithCreator returns members with creatorID first and duplicates removed.
func WithCreator(creatorID string, members []string) []string {
	out := make([]string, 0, len(members)+1)
	seen := make(map[string]struct{}, len(members)+1)
	for _, id := range append([]string{creatorID}, members...) {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Token errors. Each maps to 401 at the HTTP boundary.
var (
	ErrMalformedToken    = errors.New("malformed token")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrExpiredToken      = errors.New("token has expired")
	ErrRevokedToken      = errors.New("token has been revoked")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrUnauthenticated   = errors.New("authentication required")

	// ErrEmptyToken is a Bearer header without a token value.
	ErrEmptyToken = fmt.Errorf("%w: token is empty", ErrMalformedToken)
)

// ErrAuthUnavailable means a backing store failed while authenticating.
// The request is rejected; it is never reported as a signature failure.
var ErrAuthUnavailable = errors.New("authentication backend unavailable")

// ErrForbidden is an ownership or permission denial (403).
var ErrForbidden = errors.New("access denied")

// Account errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrNameRequired       = errors.New("name is required")
)

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Paths that never require a token.
const (
	LoginPath    = "/api/v1/auth/login"
	RegisterPath = "/api/v1/auth/register"
)

// DefaultPublicPaths is the authentication allow-list.
var DefaultPublicPaths = []string{LoginPath, RegisterPath}

// PrincipalStore resolves a token subject to a principal. It returns
// ErrUserNotFound when no principal has that id.
type PrincipalStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// Outcome is the terminal state of the authentication pipeline.
type Outcome int

const (
	// OutcomeAnonymous lets the request continue without a principal.
	OutcomeAnonymous Outcome = iota
	// OutcomeAuthenticated carries a resolved principal.
	OutcomeAuthenticated
	// OutcomeRejected stops the request.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is what Authenticate decided for one request.
type Result struct {
	Outcome   Outcome
	Principal *User
	Token     string
}

// Authenticator runs the per-request authentication pipeline:
// allow-list, bearer extraction, revocation check, verification and
// principal resolution. It is safe for concurrent use.
type Authenticator struct {
	tokens      *TokenService
	revocations RevocationStore
	principals  PrincipalStore
	publicPaths map[string]struct{}
}

// NewAuthenticator creates a pipeline. publicPaths defaults to
// DefaultPublicPaths when empty.
func NewAuthenticator(tokens *TokenService, revocations RevocationStore, principals PrincipalStore, publicPaths ...string) *Authenticator {
	if len(publicPaths) == 0 {
		publicPaths = DefaultPublicPaths
	}
	set := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		set[normalisePath(p)] = struct{}{}
	}
	return &Authenticator{
		tokens:      tokens,
		revocations: revocations,
		principals:  principals,
		publicPaths: set,
	}
}

// IsPublic reports whether path is on the allow-list.
func (a *Authenticator) IsPublic(path string) bool {
	_, ok := a.publicPaths[normalisePath(path)]
	return ok
}

// Authenticate evaluates one request. A Rejected result always comes with
// a non-nil error wrapping one of the token sentinels, or
// ErrAuthUnavailable when a store failed.
func (a *Authenticator) Authenticate(ctx context.Context, path, authorization string) (Result, error) {
	if a.IsPublic(path) {
		return Result{Outcome: OutcomeAnonymous}, nil
	}

	token, present, err := ExtractBearer(authorization)
	if !present {
		return Result{Outcome: OutcomeAnonymous}, nil
	}
	if err != nil {
		return rejected(token), err
	}

	// Revocation dominates: a revoked token is refused even when it
	// would otherwise verify.
	revoked, err := a.revocations.IsRevoked(ctx, token)
	if err != nil {
		return rejected(token), fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	if revoked {
		return rejected(token), ErrRevokedToken
	}

	subject, err := a.tokens.Verify(token)
	if err != nil {
		return rejected(token), err
	}

	principal, err := a.principals.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return rejected(token), ErrPrincipalNotFound
		}
		return rejected(token), fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}

	return Result{Outcome: OutcomeAuthenticated, Principal: principal, Token: token}, nil
}

// Bind attaches an authenticated result to ctx unless a security context
// is already bound, in which case ctx is returned unchanged.
func Bind(ctx context.Context, r Result) context.Context {
	if r.Outcome != OutcomeAuthenticated {
		return ctx
	}
	if _, bound := SecurityContextFrom(ctx); bound {
		return ctx
	}
	return WithSecurityContext(ctx, SecurityContext{Principal: r.Principal, Token: r.Token})
}

// ExtractBearer parses an Authorization header value. present is false
// when the header is absent or uses another scheme. A Bearer header with
// no token yields ErrEmptyToken.
func ExtractBearer(header string) (token string, present bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, nil
	}

	scheme, rest, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false, nil
	}

	token = strings.TrimSpace(rest)
	if token == "" {
		return "", true, ErrEmptyToken
	}
	return token, true, nil
}

func rejected(token string) Result {
	return Result{Outcome: OutcomeRejected, Token: token}
}

func normalisePath(p string) string {
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

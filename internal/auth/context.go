package auth

import "context"

type securityContextKey struct{}

// SecurityContext is the request-scoped result of a successful
// authentication: the resolved principal and the bearer token it used.
type SecurityContext struct {
	Principal *User
	Token     string
}

// WithSecurityContext binds sc to ctx. Callers that must not overwrite an
// existing binding check SecurityContextFrom first.
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityContextFrom returns the bound security context, if any.
func SecurityContextFrom(ctx context.Context) (SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextKey{}).(SecurityContext)
	if !ok || sc.Principal == nil {
		return SecurityContext{}, false
	}
	return sc, true
}

// PrincipalFrom returns the authenticated principal, or nil for an
// anonymous request.
func PrincipalFrom(ctx context.Context) *User {
	sc, ok := SecurityContextFrom(ctx)
	if !ok {
		return nil
	}
	return sc.Principal
}

// TokenFrom returns the bearer token of the authenticated request.
func TokenFrom(ctx context.Context) string {
	sc, _ := SecurityContextFrom(ctx)
	return sc.Token
}

package auth

import "fmt"

// CanAccess reports whether principal may act on resource. ADMIN always
// may; USER may when it created the resource or is one of its members.
// A nil principal or an unknown role is denied.
func CanAccess(principal *User, resource Resource) bool {
	if principal == nil || resource == nil {
		return false
	}

	switch principal.Role {
	case RoleAdmin:
		return true
	case RoleUser:
		return resource.Ownership().HasMember(principal.ID)
	default:
		return false
	}
}

// Authorize is CanAccess expressed as an error: ErrUnauthenticated when
// there is no principal, ErrForbidden when the policy denies.
func Authorize(principal *User, resource Resource) error {
	if principal == nil {
		return ErrUnauthenticated
	}
	if !CanAccess(principal, resource) {
		return fmt.Errorf("%w: %s is not a member of this resource", ErrForbidden, principal.Username)
	}
	return nil
}

// RequirePermission checks a role capability rather than resource
// ownership.
func RequirePermission(principal *User, perm Permission) error {
	if principal == nil {
		return ErrUnauthenticated
	}
	if !HasPermission(principal.Role, perm) {
		return fmt.Errorf("%w: missing permission %s", ErrForbidden, perm)
	}
	return nil
}

// MemberScope restricts list queries to resources a user belongs to.
// A nil *MemberScope means unrestricted.
type MemberScope struct {
	UserID string
}

// ScopeFor returns the list scope for principal: nil for ADMIN, the
// principal's own membership for USER. Unknown roles get a scope that
// matches nothing.
func ScopeFor(principal *User) *MemberScope {
	if principal == nil {
		return &MemberScope{}
	}
	switch principal.Role {
	case RoleAdmin:
		return nil
	case RoleUser:
		return &MemberScope{UserID: principal.ID}
	default:
		return &MemberScope{}
	}
}

// Allows reports whether a resource with the given ownership is inside
// the scope.
func (s *MemberScope) Allows(o Ownership) bool {
	if s == nil {
		return true
	}
	return o.HasMember(s.UserID)
}

package auth

// Permission is a named capability granted by role, independent of
// resource ownership.
type Permission string

const (
	PermDeviceRead       Permission = "device:read"
	PermDeviceWrite      Permission = "device:write"
	PermDeviceCommand    Permission = "device:command"
	PermMonitoringRead   Permission = "monitoring:read"
	PermMonitoringWrite  Permission = "monitoring:write"
	PermUserSearch       Permission = "user:search"
	PermAuditRead        Permission = "audit:read"
	PermRevocationManage Permission = "revocation:manage"
)

// rolePermissions is the single source of truth for role capabilities.
// Ownership is enforced separately by CanAccess.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermDeviceRead,
		PermDeviceWrite,
		PermDeviceCommand,
		PermMonitoringRead,
		PermMonitoringWrite,
		PermUserSearch,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceWrite,
		PermDeviceCommand,
		PermMonitoringRead,
		PermMonitoringWrite,
		PermUserSearch,
		PermAuditRead,
		PermRevocationManage,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role,
// or nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

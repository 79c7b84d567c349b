package rbac

// Role names carried in operator access tokens.
const (
	RoleSupport     = "support"      // read-only view of live sessions
	RoleTenantAdmin = "tenant_admin" // may end calls for its own tenant
	RoleOperator    = "operator"     // platform on-call, may end any call
	RoleSuperAdmin  = "super_admin"
)

var knownRoles = map[string]struct{}{
	RoleSupport:     {},
	RoleTenantAdmin: {},
	RoleOperator:    {},
	RoleSuperAdmin:  {},
}

func IsKnownRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsPlatformRole reports roles that are never tenant-scoped.
func IsPlatformRole(role string) bool { return role == RoleOperator || role == RoleSuperAdmin }

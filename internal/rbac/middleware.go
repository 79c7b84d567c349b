package rbac

import (
	"net/http"

	"merxus-voice-bridge/internal/auth"
	"merxus-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireTenantScope rejects tenant roles whose token names no tenant.
// Platform roles act across tenants and pass unscoped.
func RequireTenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		role, err := auth.Role(ctx)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsPlatformRole(role) || auth.TenantScope(ctx) != "" {
			c.Next()
			return
		}
		deny(c, role, "tenant scope required")
	}
}

// RequireAnyRole admits the listed roles. super_admin is always admitted.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	set := make(map[string]bool, len(allowed)+1)
	for _, r := range allowed {
		set[r] = true
	}
	set[RoleSuperAdmin] = true

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !set[role] {
			deny(c, role, "forbidden")
			return
		}
		c.Next()
	}
}

// CanSeeTenant reports whether the caller may observe or act on a tenant's calls.
// Unscoped callers passed RequireTenantScope, so they hold a platform role.
func CanSeeTenant(c *gin.Context, tenantID string) bool {
	scope := auth.TenantScope(c.Request.Context())
	return scope == "" || scope == tenantID
}

func deny(c *gin.Context, role, msg string) {
	logger.FromGin(c).Info("operator request denied", "role", role, "route", c.FullPath(), "reason", msg)
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
}

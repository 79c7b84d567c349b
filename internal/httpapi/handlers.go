package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"merxus-voice-bridge/internal/audit"
	"merxus-voice-bridge/internal/auth"
	"merxus-voice-bridge/internal/bridge"
	"merxus-voice-bridge/internal/rbac"
	"merxus-voice-bridge/internal/reporting"
	"merxus-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the operator API handlers for dependency injection.
// Keep these thin: parse/validate input, call internal modules, return JSON.
type Handlers struct {
	Registry *bridge.Registry
	Audit    *audit.Service
	Reports  *reporting.Service
	// Auth is only set when development token issuance is enabled.
	Auth *auth.Manager
	// HealthCheck pings backing stores; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// --- Health ---

func (h Handlers) Healthz(c *gin.Context) {
	if h.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.HealthCheck(ctx); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	active := 0
	if h.Registry != nil {
		active = h.Registry.Len()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active_sessions": active})
}

// --- Sessions ---

// ListSessions returns the live sessions visible to the caller.
func (h Handlers) ListSessions(c *gin.Context) {
	if h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registry not configured"})
		return
	}
	all := h.Registry.Snapshot()
	out := make([]bridge.Info, 0, len(all))
	for _, s := range all {
		if rbac.CanSeeTenant(c, s.TenantID) {
			out = append(out, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// EndSession force-closes a live session. Sessions of other tenants are
// reported as missing rather than forbidden.
func (h Handlers) EndSession(c *gin.Context) {
	if h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registry not configured"})
		return
	}
	id := c.Param("session_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	sess, ok := h.Registry.Get(id)
	if !ok || !rbac.CanSeeTenant(c, sess.TenantID()) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	info := sess.Info()
	sess.Close(bridge.ReasonOperator)

	operatorID, _ := auth.OperatorID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if h.Audit != nil {
		if err := h.Audit.LogEndCall(c.Request.Context(), info.TenantID, operatorID, role, c.ClientIP(), info.SessionID, info.CallSid); err != nil {
			logger.FromGin(c).Warn("audit append failed", "session_id", id, "err", err)
		}
	}
	logger.FromGin(c).Info("session ended by operator", "session_id", id, "tenant_id", info.TenantID, "operator_id", operatorID)
	c.JSON(http.StatusAccepted, gin.H{"session_id": id, "state": bridge.StateClosing.String()})
}

// --- Reports ---

// CallsSummary aggregates finished and live call records for one tenant.
// Query: tenant_id (defaults to the caller's scope), from and to (RFC3339, default last 24h).
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		tenantID = auth.TenantScope(c.Request.Context())
	}
	if tenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}
	if !rbac.CanSeeTenant(c, tenantID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		TenantID: tenantID,
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Dev tokens ---

type devTokenRequest struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
	TenantID   string `json:"tenant_id"`
}

// IssueDevToken mints an operator access token without credentials.
//
// NOTE: only routed in local/dev. Real deployments issue tokens from the identity provider.
func (h Handlers) IssueDevToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OperatorID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator_id, role required"})
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if !rbac.IsPlatformRole(req.Role) && req.TenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required for tenant roles"})
		return
	}
	tok, err := h.Auth.IssueAccess(time.Now(), req.OperatorID, req.Role, req.TenantID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	if h.Audit != nil && req.TenantID != "" {
		if err := h.Audit.LogTokenIssued(c.Request.Context(), req.TenantID, req.OperatorID, req.Role, c.ClientIP()); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// Convenience middleware bundles.

func RequireTenantScopeAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTenantScope(), rbac.RequireAnyRole(roles...)}
}

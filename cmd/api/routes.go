package main

import (
	"context"

	"merxus-voice-bridge/internal/audit"
	"merxus-voice-bridge/internal/auth"
	"merxus-voice-bridge/internal/bridge"
	"merxus-voice-bridge/internal/httpapi"
	"merxus-voice-bridge/internal/rbac"
	"merxus-voice-bridge/internal/reporting"
	"merxus-voice-bridge/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	Inbound  telephony.InboundCallHandler
	Media    *bridge.MediaServer
	Registry *bridge.Registry
	Audit    *audit.Service
	Reports  *reporting.Service
	Auth     *auth.Manager

	// DevTokens exposes unauthenticated operator token issuance. Never in production.
	DevTokens   bool
	HealthCheck func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := httpapi.Handlers{
		Registry:    d.Registry,
		Audit:       d.Audit,
		Reports:     d.Reports,
		HealthCheck: d.HealthCheck,
	}
	if d.DevTokens {
		h.Auth = d.Auth
	}

	// public
	r.GET("/healthz", h.Healthz)

	// Carrier endpoints (public, authenticated by signature and stream token).
	r.POST("/twilio/voice/inbound/:tenant_id", d.Inbound.HandleInboundCall)
	r.GET(telephony.StreamPath, d.Media.HandleMediaStream)

	if d.DevTokens {
		r.POST("/dev/token", h.IssueDevToken)
	}

	// operator API
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.Auth))
	{
		viewers := httpapi.RequireTenantScopeAndAnyRole(rbac.RoleSupport, rbac.RoleTenantAdmin, rbac.RoleOperator)
		enders := httpapi.RequireTenantScopeAndAnyRole(rbac.RoleTenantAdmin, rbac.RoleOperator)

		v1.GET("/sessions", append(viewers, h.ListSessions)...)
		v1.DELETE("/sessions/:session_id", append(enders, h.EndSession)...)
		v1.GET("/reports/calls", append(viewers, h.CallsSummary)...)
	}
}

package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"merxus-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

var errNoBearer = errors.New("auth: missing bearer token")

// RequireAccessToken admits requests carrying a valid operator access token.
// Stream tokens are rejected here even though they share the signing key.
// Role checks happen per route in internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := bearerToken(c.Request)
		if err != nil {
			unauthorized(c, "missing bearer token")
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Info("access token rejected", "err", err)
			unauthorized(c, "invalid token")
			return
		}

		c.Request = c.Request.WithContext(
			WithIdentity(c.Request.Context(), claims.OperatorID, claims.Role, claims.TenantID),
		)
		c.Set("operator_id", claims.OperatorID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// bearerToken extracts the credential from "Authorization: Bearer <tok>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, error) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNoBearer
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", errNoBearer
	}
	return tok, nil
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="voice-bridge"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	// TokenTypeAccess authenticates operators calling the session API.
	TokenTypeAccess TokenType = "access"
	// TokenTypeStream correlates a carrier media connection with the handshake that issued it.
	TokenTypeStream TokenType = "stream"
)

// Claims are the only supported JWT claims shape for this service.
//
// Access tokens carry OperatorID and Role; TenantID optionally scopes the
// operator to one tenant. Stream tokens carry TenantID and CallSid only.
type Claims struct {
	jwt.RegisteredClaims

	OperatorID string    `json:"operator_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	CallSid    string    `json:"call_sid,omitempty"`
	TokenType  TokenType `json:"token_type"`
}

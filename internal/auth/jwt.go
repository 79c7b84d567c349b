package auth

import (
	"errors"
	"time"

	"merxus-voice-bridge/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Manager struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	streamTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return &Manager{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
		audience:  cfg.JWTAudience,
		accessTTL: cfg.AccessTokenTTL,
		streamTTL: cfg.StreamTokenTTL,
	}, nil
}

/* ===================== ISSUE TOKENS ===================== */

// IssueAccess mints an operator token. tenantScope may be empty.
func (m *Manager) IssueAccess(now time.Time, operatorID, role, tenantScope string) (string, error) {
	return m.issue(now, m.accessTTL, Claims{
		OperatorID: operatorID,
		Role:       role,
		TenantID:   tenantScope,
		TokenType:  TokenTypeAccess,
	})
}

// IssueStream mints the token embedded in the media stream URL.
func (m *Manager) IssueStream(now time.Time, tenantID, callSid string) (string, error) {
	if tenantID == "" {
		return "", errors.New("tenant_id required for stream token")
	}
	return m.issue(now, m.streamTTL, Claims{
		TenantID:  tenantID,
		CallSid:   callSid,
		TokenType: TokenTypeStream,
	})
}

/* ===================== VERIFY TOKEN ===================== */

func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	validator := jwt.NewValidator(opts...)
	if err := validator.Validate(claims.RegisteredClaims); err != nil {
		return Claims{}, err
	}

	if claims.TokenType != expected {
		return Claims{}, errors.New("token_type mismatch")
	}
	switch expected {
	case TokenTypeAccess:
		if claims.OperatorID == "" {
			return Claims{}, errors.New("operator_id missing")
		}
		if claims.Role == "" {
			return Claims{}, errors.New("role missing in access token")
		}
	case TokenTypeStream:
		if claims.TenantID == "" {
			return Claims{}, errors.New("tenant_id missing in stream token")
		}
	}

	return claims, nil
}

/* ===================== INTERNAL ISSUE ===================== */

func (m *Manager) issue(now time.Time, ttl time.Duration, claims Claims) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Audience:  audienceOrNil(m.audience),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}

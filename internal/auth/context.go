package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxOperatorID ctxKey = iota
	ctxRole
	ctxTenantScope
)

// WithIdentity stores the verified operator identity. tenantScope may be empty
// for platform-wide operators.
func WithIdentity(ctx context.Context, operatorID, role, tenantScope string) context.Context {
	ctx = context.WithValue(ctx, ctxOperatorID, operatorID)
	ctx = context.WithValue(ctx, ctxRole, role)
	ctx = context.WithValue(ctx, ctxTenantScope, tenantScope)
	return ctx
}

func OperatorID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxOperatorID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("operator_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// TenantScope returns the tenant an operator is limited to, or "" when unrestricted.
func TenantScope(ctx context.Context) string {
	s, _ := ctx.Value(ctxTenantScope).(string)
	return s
}

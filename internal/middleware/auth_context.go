package middleware

import (
	"context"

	"github.com/sudharshan/ppe-monitor/internal/data"
)

type contextKey string

const AuthContextKey contextKey = "auth_context"

// AuthContext carries the authenticated caller's identity through the
// request, written once by the JWT middleware and read by handlers and
// permission checks.
type AuthContext struct {
	TenantID string
	UserID   string
	TokenID  string   // jti, the blacklist key
	Roles    []string // optional role-name summary for logs

	Permissions map[string]data.PermissionGrant
}

// GetAuthContext reads the AuthContext, reporting whether one is set.
func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	val, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return val, ok
}

// WithAuthContext attaches ac for downstream handlers.
func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, auth)
}

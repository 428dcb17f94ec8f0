package middleware

import (
	"net/http"
	"strings"

	"github.com/sudharshan/ppe-monitor/internal/auth"
	"github.com/sudharshan/ppe-monitor/internal/tokens"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*tokens.Claims, error)
}

// JWTAuth authenticates bearer tokens and injects the AuthContext every
// downstream handler and permission check reads.
type JWTAuth struct {
	tokens    TokenValidator
	blacklist auth.TokenBlacklist
}

func NewJWTAuth(t TokenValidator, b auth.TokenBlacklist) *JWTAuth {
	return &JWTAuth{tokens: t, blacklist: b}
}

func (m *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bearer == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.ValidateToken(bearer)
		if err != nil || claims.TokenType != tokens.Access {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// A blacklist lookup failure fails closed: better to bounce a
		// valid request than honor a revoked token.
		blacklisted, err := m.blacklist.IsBlacklisted(r.Context(), claims.TenantID, claims.ID)
		if err != nil || blacklisted {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := WithAuthContext(r.Context(), &AuthContext{
			TenantID: claims.TenantID,
			UserID:   claims.UserID,
			TokenID:  claims.ID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Package tokens issues and validates the HS256 access tokens that
// authenticate both the REST surface and the monitor WebSocket's
// query-string token. Refresh tokens are deliberately NOT JWTs — they
// live in the database (data.TokenModel) so they can be revoked and
// rotation-tracked.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenType string

const (
	Access  TokenType = "access"
	Refresh TokenType = "refresh"
)

// accessTokenTTL is short on purpose: revocation relies on the jti
// blacklist only needing to outlive the token.
const accessTokenTTL = 15 * time.Minute

type Claims struct {
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"sub"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

type Manager struct {
	signingKey []byte
}

func NewManager(signingKey string) *Manager {
	return &Manager{signingKey: []byte(signingKey)}
}

func (m *Manager) GenerateAccessToken(userID, tenantID string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID:  tenantID,
		UserID:    userID,
		TokenType: Access,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(), // jti, the blacklist key
			Subject:   userID,
		},
	})
	// kid reserves room for signing-key rotation.
	token.Header["kid"] = "v1"

	return token.SignedString(m.signingKey)
}

// ValidateToken parses and verifies a token, pinning the algorithm to
// HMAC so a crafted header can't downgrade verification.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Package data holds the raw-SQL repositories. Every model takes a DBTX
// so the same code runs against a *sql.DB or inside a *sql.Tx.
package data

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("record not found")

// DBTX is the common surface of *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Token is a refresh token row. Only the SHA-256 of the opaque token is
// stored; RevokedAt/ReplacedByTokenID make rotation and reuse detection
// possible, which is why refresh tokens are database rows and not JWTs.
type Token struct {
	ID                string
	TenantID          string
	UserID            string
	TokenHash         string
	SessionID         string
	ExpiresAt         time.Time
	RevokedAt         time.Time
	ReplacedByTokenID *string
}

type TokenModel struct {
	DB DBTX
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// New mints an opaque refresh token, stores its hash, and returns the
// plaintext (shown to the client exactly once) plus the row ID.
func (m TokenModel) New(ctx context.Context, userID, tenantID, sessionID string, ttl time.Duration) (string, string, error) {
	plain := uuid.New().String()
	id := uuid.New().String()

	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, tenant_id, user_id, token_hash, session_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, tenantID, userID, hashToken(plain), sessionID, time.Now().Add(ttl).UTC())
	if err != nil {
		return "", "", err
	}
	return plain, id, nil
}

func (m TokenModel) GetByHash(ctx context.Context, tokenPlain string) (*Token, error) {
	var t Token
	var revokedAt sql.NullTime
	var replacedBy sql.NullString

	err := m.DB.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, token_hash, session_id, expires_at, revoked_at, replaced_by_token_id
		FROM refresh_tokens
		WHERE token_hash = $1`, hashToken(tokenPlain)).Scan(
		&t.ID, &t.TenantID, &t.UserID, &t.TokenHash, &t.SessionID, &t.ExpiresAt, &revokedAt, &replacedBy)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if revokedAt.Valid {
		t.RevokedAt = revokedAt.Time
	}
	if replacedBy.Valid {
		t.ReplacedByTokenID = &replacedBy.String
	}
	return &t, nil
}

// Rotate revokes the old token and records which token superseded it,
// so presenting a rotated-out token can be detected as reuse.
func (m TokenModel) Rotate(ctx context.Context, oldTokenID, newTokenID string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = (NOW() AT TIME ZONE 'UTC'), replaced_by_token_id = $1
		WHERE id = $2`, newTokenID, oldTokenID)
	return err
}

func (m TokenModel) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = (NOW() AT TIME ZONE 'UTC')
		WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return err
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrTokenNotFound  = errors.New("reset token not found")
	ErrEmailDuplicate = errors.New("email already exists")
	ErrTokenExpired   = errors.New("reset token expired")
	ErrTokenUsed      = errors.New("reset token already used")
	ErrOptimisticLock = errors.New("optimistic lock failure")
)

// User is an operator/admin account. Rows are soft-deleted; every query
// here filters deleted_at.
type User struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Email             string
	DisplayName       string
	PasswordHash      string
	IsDisabled        bool
	PasswordUpdatedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// PasswordResetToken is a single-use, admin-issued reset credential;
// only its hash is stored.
type PasswordResetToken struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	UserID          uuid.UUID
	TokenHash       string
	ExpiresAt       time.Time
	UsedAt          *time.Time
	CreatedByUserID *uuid.UUID
	CreatedAt       time.Time
}

type UserModel struct {
	DB DBTX
}

const userColumns = `id, tenant_id, email, display_name, password_hash, is_disabled, created_at, updated_at, deleted_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.PasswordHash,
		&u.IsDisabled, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (m UserModel) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*User, error) {
	return scanUser(m.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND email = $2 AND deleted_at IS NULL`, tenantID, email))
}

// GetByID does not filter by tenant; the caller is responsible for
// checking u.TenantID against its own scope before acting on the row.
func (m UserModel) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(m.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (m UserModel) Create(ctx context.Context, u *User) error {
	return m.DB.QueryRowContext(ctx, `
		INSERT INTO users (tenant_id, email, display_name, password_hash, is_disabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		u.TenantID, u.Email, u.DisplayName, u.PasswordHash, u.IsDisabled).Scan(
		&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func (m UserModel) Update(ctx context.Context, u *User) error {
	err := m.DB.QueryRowContext(ctx, `
		UPDATE users
		SET display_name = $1, is_disabled = $2, password_hash = $3, updated_at = NOW()
		WHERE id = $4 AND deleted_at IS NULL
		RETURNING updated_at`,
		u.DisplayName, u.IsDisabled, u.PasswordHash, u.ID).Scan(&u.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrUserNotFound
	}
	return err
}

func (m UserModel) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `
		UPDATE users
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (m UserModel) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*User, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, tenant_id, email, display_name, is_disabled, created_at
		FROM users
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.IsDisabled, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (m UserModel) CreateResetToken(ctx context.Context, t *PasswordResetToken) error {
	return m.DB.QueryRowContext(ctx, `
		INSERT INTO password_reset_tokens (tenant_id, user_id, token_hash, expires_at, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		t.TenantID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedByUserID).Scan(&t.ID, &t.CreatedAt)
}

func (m UserModel) GetResetToken(ctx context.Context, hash string) (*PasswordResetToken, error) {
	var t PasswordResetToken
	err := m.DB.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, token_hash, expires_at, used_at
		FROM password_reset_tokens
		WHERE token_hash = $1`, hash).Scan(
		&t.ID, &t.TenantID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkTokenUsed burns a reset token; the used_at guard makes a token
// single-use even under concurrent redemption.
func (m UserModel) MarkTokenUsed(ctx context.Context, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `
		UPDATE password_reset_tokens
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenUsed
	}
	return nil
}

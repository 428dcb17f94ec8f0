package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrCredentialNotFound = errors.New("credentials not found")

// CameraCredential is the envelope-encrypted stream credential for one
// camera: the secret sealed under a per-row DEK, the DEK sealed under
// the master key named by MasterKID. Plaintext never touches this
// table.
type CameraCredential struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	CameraID       uuid.UUID
	MasterKID      string
	DEKNonce       []byte
	DEKCiphertext  []byte
	DEKTag         []byte
	DataNonce      []byte
	DataCiphertext []byte
	DataTag        []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CredentialModel struct {
	DB *sql.DB
}

func (m CredentialModel) Get(ctx context.Context, cameraID uuid.UUID) (*CameraCredential, error) {
	var c CameraCredential
	err := m.DB.QueryRowContext(ctx, `
		SELECT id, tenant_id, camera_id, master_kid,
		       dek_nonce, dek_ciphertext, dek_tag,
		       data_nonce, data_ciphertext, data_tag,
		       created_at, updated_at
		FROM camera_credentials
		WHERE camera_id = $1`, cameraID).Scan(
		&c.ID, &c.TenantID, &c.CameraID, &c.MasterKID,
		&c.DEKNonce, &c.DEKCiphertext, &c.DEKTag,
		&c.DataNonce, &c.DataCiphertext, &c.DataTag,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert replaces a camera's credential wholesale; rotation writes a
// new envelope rather than mutating fields of the old one.
func (m CredentialModel) Upsert(ctx context.Context, c *CameraCredential) error {
	return m.DB.QueryRowContext(ctx, `
		INSERT INTO camera_credentials (
			tenant_id, camera_id, master_kid,
			dek_nonce, dek_ciphertext, dek_tag,
			data_nonce, data_ciphertext, data_tag,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (camera_id) DO UPDATE SET
			master_kid = EXCLUDED.master_kid,
			dek_nonce = EXCLUDED.dek_nonce,
			dek_ciphertext = EXCLUDED.dek_ciphertext,
			dek_tag = EXCLUDED.dek_tag,
			data_nonce = EXCLUDED.data_nonce,
			data_ciphertext = EXCLUDED.data_ciphertext,
			data_tag = EXCLUDED.data_tag,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		c.TenantID, c.CameraID, c.MasterKID,
		c.DEKNonce, c.DEKCiphertext, c.DEKTag,
		c.DataNonce, c.DataCiphertext, c.DataTag).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (m CredentialModel) Delete(ctx context.Context, cameraID uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM camera_credentials WHERE camera_id = $1`, cameraID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

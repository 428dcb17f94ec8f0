package cameras

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/audit"
	"github.com/sudharshan/ppe-monitor/internal/crypto"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

var (
	ErrCredentialTooLarge = errors.New("credential payload exceeds 4KB limit")
	ErrCredentialInvalid  = errors.New("invalid credential format")
	ErrCredentialCrypto   = errors.New("credential encryption/decryption failed")
)

const (
	MaxCredentialSize = 4096
	// AADPurpose pins ciphertexts to this use; bump the suffix if the
	// payload format ever changes incompatibly.
	AADPurpose = "camera_credential_v1"
)

type CredentialUpdater interface {
	Upsert(ctx context.Context, c *data.CameraCredential) error
	Get(ctx context.Context, cameraID uuid.UUID) (*data.CameraCredential, error)
	Delete(ctx context.Context, cameraID uuid.UUID) error
}

// CredentialProvider is the read side consumers like the health prober
// depend on: fetch (and optionally reveal) one camera's credential.
type CredentialProvider interface {
	GetCredentials(ctx context.Context, tenantID, cameraID uuid.UUID, reveal bool) (*CredentialOutput, bool, error)
}

// CredentialService envelope-encrypts stream credentials. The AAD binds
// each ciphertext to (tenant, camera, purpose), so a row copied onto
// another camera's ID fails authentication instead of decrypting.
type CredentialService struct {
	repo    CredentialUpdater
	keyring *crypto.Keyring
	auditor Auditor
}

func NewCredentialService(repo CredentialUpdater, keyring *crypto.Keyring, aud Auditor) *CredentialService {
	return &CredentialService{repo: repo, keyring: keyring, auditor: aud}
}

// CredentialInput is the plaintext credential payload.
type CredentialInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	AuthType string `json:"auth_type,omitempty"`
}

// CredentialOutput is what reads return; Data is set only on reveal.
type CredentialOutput struct {
	Exists    bool             `json:"exists"`
	Refreshed bool             `json:"refreshed,omitempty"`
	Data      *CredentialInput `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

func credentialAAD(tenantID, cameraID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", tenantID, cameraID, AADPurpose))
}

// SetCredentials seals input under a fresh DEK and stores the envelope.
func (s *CredentialService) SetCredentials(ctx context.Context, tenantID, cameraID uuid.UUID, input CredentialInput) error {
	plaintext, err := json.Marshal(input)
	if err != nil {
		return ErrCredentialInvalid
	}
	if len(plaintext) > MaxCredentialSize {
		return ErrCredentialTooLarge
	}

	aad := credentialAAD(tenantID, cameraID)

	dek, err := crypto.GenerateDEK()
	if err != nil {
		return fmt.Errorf("dek gen failed: %w", err)
	}
	dNonce, dCipher, dTag, err := crypto.EncryptGCM(dek, plaintext, aad)
	if err != nil {
		return fmt.Errorf("data encrypt failed: %w", err)
	}
	// The DEK wrap uses the same AAD as the data, so an unwrapped DEK is
	// still bound to this camera's context.
	kid, kNonce, kCipher, kTag, err := s.keyring.WrapDEK(dek, aad)
	if err != nil {
		return fmt.Errorf("key wrap failed: %w", err)
	}

	if err := s.repo.Upsert(ctx, &data.CameraCredential{
		TenantID:       tenantID,
		CameraID:       cameraID,
		MasterKID:      kid,
		DEKNonce:       kNonce,
		DEKCiphertext:  kCipher,
		DEKTag:         kTag,
		DataNonce:      dNonce,
		DataCiphertext: dCipher,
		DataTag:        dTag,
	}); err != nil {
		return err
	}

	s.auditCredential(ctx, tenantID, cameraID, "camera.credential.write", map[string]any{"kid": kid})
	return nil
}

// GetCredentials returns (output, found, error); a missing record is
// (nil, false, nil). With reveal the envelope is opened and the
// plaintext included, which the audit event records.
func (s *CredentialService) GetCredentials(ctx context.Context, tenantID, cameraID uuid.UUID, reveal bool) (*CredentialOutput, bool, error) {
	c, err := s.repo.Get(ctx, cameraID)
	if errors.Is(err, data.ErrCredentialNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if c.TenantID != tenantID {
		// Cross-tenant ID guess: reported as ErrCredentialNotFound; the
		// other tenant's row is never returned.
		return nil, false, data.ErrCredentialNotFound
	}

	out := &CredentialOutput{Exists: true, CreatedAt: c.CreatedAt}

	if reveal {
		aad := credentialAAD(tenantID, cameraID)

		dek, err := s.keyring.UnwrapDEK(c.MasterKID, c.DEKNonce, c.DEKCiphertext, c.DEKTag, aad)
		if err != nil {
			s.logCryptoError("unwrap", c.MasterKID, err)
			return nil, true, NewCredentialStepError("unwrap_dek", "crypto_unwrap_failed", "credential unwrap failed", ErrCredentialCrypto)
		}
		plaintext, err := crypto.DecryptGCM(dek, c.DataNonce, c.DataCiphertext, c.DataTag, aad)
		if err != nil {
			s.logCryptoError("decrypt_data", c.MasterKID, err)
			return nil, true, NewCredentialStepError("decrypt_data", "crypto_decrypt_failed", "credential decrypt failed", ErrCredentialCrypto)
		}

		var input CredentialInput
		if err := json.Unmarshal(plaintext, &input); err != nil {
			return nil, true, NewCredentialStepError("unmarshal", "crypto_payload_corrupt", "credential payload corrupt", ErrCredentialCrypto)
		}
		out.Data = &input
	}

	s.auditCredential(ctx, tenantID, cameraID, "camera.credential.read", map[string]any{"revealed": reveal})
	return out, true, nil
}

// DeleteCredentials removes the envelope; deleting an absent record is
// a no-op and is not audited.
func (s *CredentialService) DeleteCredentials(ctx context.Context, tenantID, cameraID uuid.UUID) error {
	err := s.repo.Delete(ctx, cameraID)
	if errors.Is(err, data.ErrCredentialNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.auditCredential(ctx, tenantID, cameraID, "camera.credential.delete", nil)
	return nil
}

func (s *CredentialService) auditCredential(ctx context.Context, tenantID, cameraID uuid.UUID, action string, meta map[string]any) {
	evt := audit.AuditEvent{
		TenantID:   tenantID,
		EventID:    uuid.New(),
		Action:     action,
		Result:     "success",
		TargetID:   cameraID.String(),
		TargetType: "camera",
		CreatedAt:  time.Now(),
	}
	if meta != nil {
		evt.Metadata, _ = json.Marshal(meta)
	}
	s.auditor.WriteEvent(ctx, evt)
}

func (s *CredentialService) logCryptoError(stage, kid string, err error) {
	log.Printf("cameras: credential crypto error [%s] kid=%s: %v", stage, kid, err)
}

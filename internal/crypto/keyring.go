// Package crypto implements envelope encryption for camera stream
// credentials: a per-credential data key (DEK) encrypts the secret, and
// a keyring of master keys wraps the DEK. Master keys rotate by KID
// without re-encrypting stored credentials.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrKeyNotFound    = errors.New("key not found in keyring")
	ErrActiveKeyUnset = errors.New("active master key identifier not set or found")
)

// MasterKey is one entry of the MASTER_KEYS environment JSON.
type MasterKey struct {
	KID      string `json:"kid"`
	Material string `json:"material"` // base64, 32 bytes decoded
}

// Keyring holds every configured master key by KID plus the KID new
// wraps use. Old KIDs stay loadable so credentials wrapped before a
// rotation still decrypt.
type Keyring struct {
	keys      map[string][]byte
	activeKID string
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string][]byte)}
}

// LoadFromEnv reads MASTER_KEYS (a JSON array of {kid, material}) and
// ACTIVE_MASTER_KID. Validation is strict: a missing active key, a
// duplicate KID, or key material that isn't 32 bytes refuses startup
// rather than limping along with a partial keyring.
func (k *Keyring) LoadFromEnv() error {
	keysJSON := os.Getenv("MASTER_KEYS")
	if keysJSON == "" {
		return errors.New("MASTER_KEYS environment variable is empty")
	}
	activeKID := os.Getenv("ACTIVE_MASTER_KID")
	if activeKID == "" {
		return errors.New("ACTIVE_MASTER_KID environment variable is empty")
	}

	var rawKeys []MasterKey
	if err := json.Unmarshal([]byte(keysJSON), &rawKeys); err != nil {
		return fmt.Errorf("failed to parse MASTER_KEYS: %w", err)
	}

	k.keys = make(map[string][]byte)
	for _, rk := range rawKeys {
		if rk.KID == "" {
			return errors.New("found master key with empty KID")
		}
		if _, exists := k.keys[rk.KID]; exists {
			return fmt.Errorf("duplicate master key KID: %s", rk.KID)
		}

		material, err := base64.StdEncoding.DecodeString(rk.Material)
		if err != nil {
			return fmt.Errorf("invalid base64 for key %s: %w", rk.KID, err)
		}
		if len(material) != 32 {
			return fmt.Errorf("invalid key length for %s: expected 32 bytes (AES-256), got %d", rk.KID, len(material))
		}
		k.keys[rk.KID] = material
	}

	if _, ok := k.keys[activeKID]; !ok {
		return fmt.Errorf("active key %s not found in MASTER_KEYS", activeKID)
	}
	k.activeKID = activeKID
	return nil
}

// WrapDEK encrypts dek under the active master key. Returns the KID
// used plus the nonce/ciphertext/tag triple the credential row stores.
func (k *Keyring) WrapDEK(dek []byte, aad []byte) (string, []byte, []byte, []byte, error) {
	masterKey, ok := k.keys[k.activeKID]
	if k.activeKID == "" || !ok {
		return "", nil, nil, nil, ErrActiveKeyUnset
	}

	nonce, ciphertext, tag, err := EncryptGCM(masterKey, dek, aad)
	if err != nil {
		return "", nil, nil, nil, err
	}
	return k.activeKID, nonce, ciphertext, tag, nil
}

// UnwrapDEK decrypts a wrapped DEK using the master key recorded with
// it, which may be an older, rotated-out KID.
func (k *Keyring) UnwrapDEK(kid string, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	masterKey, ok := k.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return DecryptGCM(masterKey, nonce, ciphertext, tag, aad)
}

// GenerateDEK creates a fresh random 32-byte data key.
func GenerateDEK() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size: must be 32 bytes for AES-256")
	ErrDecryption     = errors.New("decryption failed: invalid key, tag, or context")
)

// EncryptGCM encrypts plaintext with AES-256-GCM under key and aad,
// returning nonce, ciphertext, and tag as separate values since the
// credential schema stores them in separate columns (Go's Seal would
// otherwise append the tag to the ciphertext).
func EncryptGCM(key []byte, plaintext []byte, aad []byte) (nonce, ciphertext, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	tagSize := gcm.Overhead()
	if len(sealed) < tagSize {
		return nil, nil, nil, errors.New("encryption error: output too short")
	}
	return nonce, sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:], nil
}

// DecryptGCM reverses EncryptGCM. Any authentication failure is
// collapsed into ErrDecryption so callers can't distinguish a wrong key
// from a tampered ciphertext.
func DecryptGCM(key, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

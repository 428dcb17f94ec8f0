package license

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
)

// MaxLicenseSizeBytes bounds what we're willing to read as a license
// file; anything bigger is rejected unread.
const MaxLicenseSizeBytes = 64 * 1024

// Parser verifies a license file's RSA signature and decodes its
// payload.
type Parser struct {
	PublicKey *rsa.PublicKey
}

// NewParser loads the vendor public key, accepting both PKIX and PKCS1
// PEM encodings since issued keys have shipped in both forms.
func NewParser(pubKeyPath string) (*Parser, error) {
	data, err := os.ReadFile(pubKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %v", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}
	if block.Type != "PUBLIC KEY" && block.Type != "RSA PUBLIC KEY" {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}

	var pub any
	pub, err = x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		pkcs1Pub, err2 := x509.ParsePKCS1PublicKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("failed to parse public key: %v", err)
		}
		pub = pkcs1Pub
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not RSA")
	}
	return &Parser{PublicKey: rsaPub}, nil
}

// ParseAndVerify reads the license file, verifies the RS256 signature
// over the raw payload bytes, and decodes the payload. The returned
// Status distinguishes a missing file from a malformed one from a bad
// signature; only StatusValid carries a payload.
func (p *Parser) ParseAndVerify(path string) (*LicensePayload, Status, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, StatusMissing, nil
	}
	if err == nil && info.Size() > MaxLicenseSizeBytes {
		return nil, StatusParseError, fmt.Errorf("file too large")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, StatusParseError, err
	}

	var lf LicenseFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, StatusParseError, fmt.Errorf("malformed license file")
	}

	payloadBytes, err := base64.StdEncoding.DecodeString(lf.PayloadB64)
	if err != nil {
		return nil, StatusParseError, fmt.Errorf("malformed payload b64")
	}
	sigBytes, err := base64.StdEncoding.DecodeString(lf.SigB64)
	if err != nil {
		return nil, StatusParseError, fmt.Errorf("malformed sig b64")
	}

	hashed := sha256.Sum256(payloadBytes)
	if err := rsa.VerifyPKCS1v15(p.PublicKey, crypto.SHA256, hashed[:], sigBytes); err != nil {
		return nil, StatusInvalidSignature, fmt.Errorf("signature verification failed")
	}

	var payload LicensePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, StatusParseError, fmt.Errorf("malformed payload json")
	}
	return &payload, StatusValid, nil
}

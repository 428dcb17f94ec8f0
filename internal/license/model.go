// Package license verifies the signed license file and gates
// capacity-consuming operations (camera registration, stream starts)
// against its limits. An expired license degrades through a 30-day
// grace period before blocking.
package license

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusValid            Status = "VALID"
	StatusExpiredGrace     Status = "EXPIRED_GRACE"
	StatusExpiredBlocked   Status = "EXPIRED_BLOCKED"
	StatusInvalidSignature Status = "INVALID_SIGNATURE"
	StatusMissing          Status = "MISSING"
	StatusParseError       Status = "PARSE_ERROR"
)

// LicenseFile is the on-disk JSON: a base64 payload and its detached
// RS256 signature.
type LicenseFile struct {
	PayloadB64 string `json:"payload_b64"`
	SigB64     string `json:"sig_b64"`
	Alg        string `json:"alg"` // expected RS256
}

// LicensePayload is the signed business content. CustomerName is PII;
// never log it.
type LicensePayload struct {
	LicenseID    uuid.UUID       `json:"license_id"`
	CustomerName string          `json:"customer_name"`
	TenantScope  string          `json:"tenant_scope"` // "all" or a tenant UUID
	IssuedAt     time.Time       `json:"issued_at_utc"`
	ValidUntil   time.Time       `json:"valid_until_utc"`
	Limits       LicenseLimits   `json:"limits"`
	Features     map[string]bool `json:"features"`
}

type LicenseLimits struct {
	MaxCameras int `json:"max_cameras"`
	// MaxStreams caps concurrently monitored streams across the tenant;
	// 0 means unlimited.
	MaxStreams int `json:"max_streams"`
}

// LicenseState is the evaluated in-memory view the rest of the process
// reads; Payload is nil unless the file verified.
type LicenseState struct {
	Status       Status
	Payload      *LicensePayload
	LastReload   time.Time
	DaysToExpiry int
	ReasonCode   string
}

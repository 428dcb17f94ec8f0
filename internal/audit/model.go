// Package audit is the append-only trail of mutating API calls: camera
// registration, credential changes, alert acknowledgement, user admin.
// Writes prefer the database and fail over to a local JSONL spool that a
// background replayer drains once the database returns.
package audit

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one audit log entry. EventID is the idempotency key: a
// spooled event replayed after a partial write inserts at most once.
type AuditEvent struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	ActorUserID *uuid.UUID      `json:"actor_user_id,omitempty"`
	Action      string          `json:"action"`
	TargetType  string          `json:"target_type,omitempty"`
	TargetID    string          `json:"target_id,omitempty"`
	Result      string          `json:"result"` // success/failure
	ReasonCode  string          `json:"reason_code,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	ClientIP    string          `json:"client_ip,omitempty"`
	UserAgent   string          `json:"user_agent,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// FailoverEvent is the JSONL envelope used by the disk spool.
type FailoverEvent struct {
	EventID   string     `json:"event_id"`
	TenantID  string     `json:"tenant_id"`
	Payload   AuditEvent `json:"payload"`
	Timestamp time.Time  `json:"timestamp"`
}

// AuditFilter narrows queries and exports. Cursor is the last-seen row
// ID for keyset pagination.
type AuditFilter struct {
	TenantID    uuid.UUID
	ActorUserID *uuid.UUID
	DateFrom    *time.Time
	DateTo      *time.Time
	Result      string
	Limit       int
	Cursor      string
}

type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

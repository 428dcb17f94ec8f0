// Package detections is the persistence sink: it atomically
// inserts a detection record and, for violations, an alert record in
// the same transaction.
package detections

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/compliance"
)

// Severity mirrors the original alert model's three-level scale.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// SeverityFor implements the canonical severity policy:
// MissingBoth and MissingHardhat are High, MissingVest is Medium.
func SeverityFor(kind compliance.ViolationKind) Severity {
	switch kind {
	case compliance.MissingBoth, compliance.MissingHardhat:
		return SeverityHigh
	case compliance.MissingVest:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DetectionFields is everything persisted for both a violation record
// and a compliance sample; the two record kinds are distinguished only
// by field values.
type DetectionFields struct {
	CameraID          string
	Timestamp         time.Time
	TrackID           string
	WorkerID          string
	PersonDetected    bool
	HardhatDetected   bool
	NoHardhatDetected bool
	VestDetected      bool
	NoVestDetected    bool
	IsCompliant       bool
	ConfidenceScores  map[string]float64
	SnapshotURL       string // empty for compliance samples
	ViolationType     string // empty for compliance samples
}

// AlertFields is the alert row created alongside a violation detection.
type AlertFields struct {
	Severity Severity
	Message  string
}

// DBTX is the common interface over *sql.DB and *sql.Tx, matching
// internal/data's repository pattern.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TxBeginner is implemented by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Sink is the persistence sink. All writes use a short-lived
// transaction scoped to the call; failures are logged and returned as a
// boolean outcome only — the pipeline never terminates on a persistence
// error.
type Sink struct {
	db TxBeginner
}

func NewSink(db TxBeginner) *Sink {
	return &Sink{db: db}
}

// RecordViolation inserts a detection then an alert in one transaction,
// rolling back both on any error. Returns the detection id, the alert
// id, and whether the write succeeded.
func (s *Sink) RecordViolation(ctx context.Context, d DetectionFields, a AlertFields) (detectionID, alertID string, ok bool) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("detections: begin tx: %v", err)
		return "", "", false
	}
	defer tx.Rollback()

	detectionID = uuid.New().String()
	confJSON, err := json.Marshal(d.ConfidenceScores)
	if err != nil {
		log.Printf("detections: marshal confidence scores: %v", err)
		return "", "", false
	}

	_, err = tx.ExecContext(ctx, insertDetectionSQL,
		detectionID, d.CameraID, d.Timestamp, nullableString(d.TrackID), nullableString(d.WorkerID),
		d.PersonDetected, d.HardhatDetected, d.NoHardhatDetected, d.VestDetected, d.NoVestDetected,
		d.IsCompliant, string(confJSON), nullableString(d.SnapshotURL), nullableString(d.ViolationType),
	)
	if err != nil {
		log.Printf("detections: insert detection: %v", err)
		return "", "", false
	}

	alertID = uuid.New().String()
	_, err = tx.ExecContext(ctx, insertAlertSQL, alertID, detectionID, string(a.Severity), a.Message)
	if err != nil {
		log.Printf("detections: insert alert: %v", err)
		return "", "", false
	}

	if err := tx.Commit(); err != nil {
		log.Printf("detections: commit: %v", err)
		return "", "", false
	}
	return detectionID, alertID, true
}

// RecordCompliance inserts a compliance sample in its own transaction.
func (s *Sink) RecordCompliance(ctx context.Context, d DetectionFields) (detectionID string, ok bool) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("detections: begin tx: %v", err)
		return "", false
	}
	defer tx.Rollback()

	detectionID = uuid.New().String()
	confJSON, err := json.Marshal(d.ConfidenceScores)
	if err != nil {
		log.Printf("detections: marshal confidence scores: %v", err)
		return "", false
	}

	_, err = tx.ExecContext(ctx, insertDetectionSQL,
		detectionID, d.CameraID, d.Timestamp, nullableString(d.TrackID), nullableString(d.WorkerID),
		d.PersonDetected, d.HardhatDetected, d.NoHardhatDetected, d.VestDetected, d.NoVestDetected,
		d.IsCompliant, string(confJSON), nullableString(d.SnapshotURL), nullableString(d.ViolationType),
	)
	if err != nil {
		log.Printf("detections: insert compliance sample: %v", err)
		return "", false
	}

	if err := tx.Commit(); err != nil {
		log.Printf("detections: commit: %v", err)
		return "", false
	}
	return detectionID, true
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const insertDetectionSQL = `
	INSERT INTO detection_events (
		id, camera_id, timestamp, track_id, worker_id,
		person_detected, hardhat_detected, no_hardhat_detected, safety_vest_detected, no_safety_vest_detected,
		is_compliant, confidence_scores, snapshot_url, violation_type
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

const insertAlertSQL = `
	INSERT INTO alerts (id, detection_event_id, severity, message, created_at)
	VALUES ($1,$2,$3,$4,NOW())`

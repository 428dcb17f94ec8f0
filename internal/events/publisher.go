// Package events publishes a best-effort NATS notification after a
// violation commits (an additive downstream concern; publish failures
// never roll back the persistence sink's transaction).
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// ViolationEvent is the wire shape published to the violations subject.
type ViolationEvent struct {
	CameraID      string    `json:"camera_id"`
	WorkerID      string    `json:"worker_id"`
	DetectionID   string    `json:"detection_id"`
	AlertID       string    `json:"alert_id"`
	Severity      string    `json:"severity"`
	ViolationType string    `json:"violation_type"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher publishes violation events with bounded retry/backoff.
type Publisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewPublisher(conn *nats.Conn, subject string, maxRetries int) *Publisher {
	if subject == "" {
		subject = "ppe.violations"
	}
	return &Publisher{conn: conn, subject: subject, maxRetries: maxRetries}
}

// PublishViolation marshals and publishes evt. Errors are logged, not
// returned: a downstream outage must never affect the pipeline or its
// persisted record.
func (p *Publisher) PublishViolation(evt ViolationEvent) {
	if p.conn == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("events: marshal violation event: %v", err)
		return
	}

	var lastErr error
	for i := 0; i <= p.maxRetries; i++ {
		if lastErr = p.conn.Publish(p.subject, data); lastErr == nil {
			return
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	log.Printf("events: publish failed after %d retries: %v", p.maxRetries, lastErr)
}

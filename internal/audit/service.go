package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
)

// WriteEvent inserts evt, generating its idempotency key if the caller
// didn't. A database failure falls over to the disk spool; only a
// failure of both surfaces as an error. The table is append-only — no
// update or delete path exists in this package.
func (s *Service) WriteEvent(ctx context.Context, evt AuditEvent) error {
	if evt.EventID == uuid.Nil {
		evt.EventID = uuid.New()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO audit_logs (
			event_id, tenant_id, actor_user_id, action, target_type, target_id,
			result, reason_code, request_id, client_ip, user_agent, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, evt.TenantID, evt.ActorUserID, evt.Action, evt.TargetType, evt.TargetID,
		evt.Result, evt.ReasonCode, evt.RequestID, evt.ClientIP, evt.UserAgent, evt.Metadata, evt.CreatedAt)
	if err == nil {
		return nil
	}

	log.Printf("audit: db write failed (%v), spooling event %s", err, evt.EventID)
	if spoolErr := SpoolEvent(evt); spoolErr != nil {
		log.Printf("audit: CRITICAL: spool failed for event %s: %v", evt.EventID, spoolErr)
		return fmt.Errorf("audit critical failure: %v", spoolErr)
	}
	return nil
}

// QueryEvents pages through a tenant's events newest-first, returning
// the cursor for the next page.
func (s *Service) QueryEvents(ctx context.Context, f AuditFilter) ([]AuditEvent, string, error) {
	q := `SELECT id, event_id, tenant_id, actor_user_id, action, result, created_at, metadata
	      FROM audit_logs
	      WHERE tenant_id = $1`
	args := []any{f.TenantID}
	idx := 2

	if f.Result != "" {
		q += fmt.Sprintf(" AND result = $%d", idx)
		args = append(args, f.Result)
		idx++
	}
	if f.Cursor != "" {
		q += fmt.Sprintf(" AND (created_at, id) < (SELECT created_at, id FROM audit_logs WHERE id = $%d)", idx)
		args = append(args, f.Cursor)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", idx)
	args = append(args, f.Limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var events []AuditEvent
	var lastID string
	for rows.Next() {
		evt, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, "", err
		}
		events = append(events, evt)
		lastID = evt.ID.String()
	}
	return events, lastID, rows.Err()
}

// exportCap bounds a single export so one request can't stream the
// whole table.
const exportCap = 10000

// ExportEvents streams a tenant's events to w as JSON lines.
func (s *Service) ExportEvents(ctx context.Context, f AuditFilter, w io.Writer) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, event_id, tenant_id, actor_user_id, action, result, created_at, metadata
		FROM audit_logs
		WHERE tenant_id = $1`, f.TenantID)
	if err != nil {
		return err
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	for count := 0; rows.Next() && count < exportCap; count++ {
		evt, err := scanEvent(rows.Scan)
		if err != nil {
			return err
		}
		if err := enc.Encode(evt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanEvent(scan func(...any) error) (AuditEvent, error) {
	var evt AuditEvent
	var meta []byte
	if err := scan(&evt.ID, &evt.EventID, &evt.TenantID, &evt.ActorUserID, &evt.Action, &evt.Result, &evt.CreatedAt, &meta); err != nil {
		return evt, err
	}
	if len(meta) > 0 {
		evt.Metadata = json.RawMessage(meta)
	}
	return evt, nil
}

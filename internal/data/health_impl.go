package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// HealthModel implements HealthRepository against the
// camera_health_current / camera_health_history / camera_health_alerts
// tables.
type HealthModel struct {
	DB *sql.DB
}

func (m *HealthModel) UpsertStatus(ctx context.Context, h *CameraHealthCurrent) error {
	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO camera_health_current
			(tenant_id, camera_id, status, last_checked_at, last_success_at,
			 consecutive_failures, last_error_code, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, camera_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_checked_at = EXCLUDED.last_checked_at,
			last_success_at = EXCLUDED.last_success_at,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_error_code = EXCLUDED.last_error_code,
			updated_at = EXCLUDED.updated_at`,
		h.TenantID, h.CameraID, h.Status, h.LastCheckedAt, h.LastSuccessAt,
		h.ConsecutiveFailures, h.LastErrorCode, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("health: upsert status: %w", err)
	}
	return nil
}

func (m *HealthModel) GetStatus(ctx context.Context, cameraID uuid.UUID) (*CameraHealthCurrent, error) {
	row := m.DB.QueryRowContext(ctx, `
		SELECT tenant_id, camera_id, status, last_checked_at, last_success_at,
		       consecutive_failures, last_error_code, updated_at
		FROM camera_health_current
		WHERE camera_id = $1`, cameraID)

	h, err := scanHealthCurrent(row.Scan)
	if err == sql.ErrNoRows {
		// Never probed; not an error.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("health: get status: %w", err)
	}
	return h, nil
}

func (m *HealthModel) AddHistory(ctx context.Context, h *CameraHealthHistory) error {
	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO camera_health_history
			(tenant_id, camera_id, occurred_at, status, reason_code, rtt_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.TenantID, h.CameraID, h.OccurredAt, h.Status, h.ReasonCode, h.RTTMS)
	return err
}

// PruneHistory deletes everything outside the camera's newest maxRecords
// rows, keeping the history bounded.
func (m *HealthModel) PruneHistory(ctx context.Context, cameraID uuid.UUID, maxRecords int) error {
	_, err := m.DB.ExecContext(ctx, `
		DELETE FROM camera_health_history
		WHERE camera_id = $1 AND id NOT IN (
			SELECT id FROM camera_health_history
			WHERE camera_id = $1
			ORDER BY occurred_at DESC
			LIMIT $2
		)`, cameraID, maxRecords)
	return err
}

func (m *HealthModel) GetHistory(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]*CameraHealthHistory, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, tenant_id, camera_id, occurred_at, status, reason_code, rtt_ms
		FROM camera_health_history
		WHERE camera_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3`, cameraID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("health: get history: %w", err)
	}
	defer rows.Close()

	var history []*CameraHealthHistory
	for rows.Next() {
		var h CameraHealthHistory
		var reason sql.NullString
		if err := rows.Scan(&h.ID, &h.TenantID, &h.CameraID, &h.OccurredAt, &h.Status, &reason, &h.RTTMS); err != nil {
			return nil, err
		}
		h.ReasonCode = reason.String
		history = append(history, &h)
	}
	return history, rows.Err()
}

func (m *HealthModel) UpsertAlert(ctx context.Context, a *CameraAlert) error {
	return m.DB.QueryRowContext(ctx, `
		INSERT INTO camera_health_alerts
			(tenant_id, camera_id, type, state, started_at, ended_at, last_notified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		a.TenantID, a.CameraID, a.Type, a.State, a.StartedAt, a.EndedAt, a.LastNotifiedAt).Scan(&a.ID)
}

func (m *HealthModel) GetOpenAlert(ctx context.Context, cameraID uuid.UUID, alertType string) (*CameraAlert, error) {
	row := m.DB.QueryRowContext(ctx, `
		SELECT id, tenant_id, camera_id, type, state, started_at, ended_at, last_notified_at
		FROM camera_health_alerts
		WHERE camera_id = $1 AND type = $2 AND state = 'open'
		LIMIT 1`, cameraID, alertType)

	a, err := scanHealthAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("health: get open alert: %w", err)
	}
	return a, nil
}

func (m *HealthModel) CloseAlert(ctx context.Context, alertID uuid.UUID) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE camera_health_alerts
		SET state = 'closed', ended_at = NOW()
		WHERE id = $1`, alertID)
	return err
}

func (m *HealthModel) ListAlerts(ctx context.Context, tenantID uuid.UUID, state string) ([]*CameraAlert, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, tenant_id, camera_id, type, state, started_at, ended_at, last_notified_at
		FROM camera_health_alerts
		WHERE tenant_id = $1`)
	args := []any{tenantID}
	if state != "" {
		sb.WriteString(" AND state = $2")
		args = append(args, state)
	}
	sb.WriteString(" ORDER BY started_at DESC LIMIT 50")

	rows, err := m.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("health: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*CameraAlert
	for rows.Next() {
		a, err := scanHealthAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// targetSelect joins each camera's descriptor with its latest probe
// state. Only network stream sources are probeable; device indexes and
// local files have no endpoint to dial.
const targetSelect = `
	SELECT c.tenant_id, c.id, c.stream_source,
	       COALESCE(h.status, 'OFFLINE'),
	       COALESCE(h.last_checked_at, '1970-01-01'),
	       COALESCE(h.consecutive_failures, 0)
	FROM cameras c
	LEFT JOIN camera_health_current h ON c.id = h.camera_id
	WHERE c.is_enabled AND c.deleted_at IS NULL
	  AND c.stream_source LIKE 'rtsp://%'`

func (m *HealthModel) ListTargets(ctx context.Context) ([]CameraHealthTarget, error) {
	rows, err := m.DB.QueryContext(ctx, targetSelect)
	if err != nil {
		return nil, fmt.Errorf("health: list targets: %w", err)
	}
	defer rows.Close()

	var targets []CameraHealthTarget
	for rows.Next() {
		var t CameraHealthTarget
		if err := rows.Scan(&t.TenantID, &t.CameraID, &t.StreamSource, &t.Status, &t.LastCheckedAt, &t.ConsecutiveFailures); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (m *HealthModel) GetTarget(ctx context.Context, cameraID uuid.UUID) (*CameraHealthTarget, error) {
	var t CameraHealthTarget
	err := m.DB.QueryRowContext(ctx, targetSelect+" AND c.id = $1", cameraID).Scan(
		&t.TenantID, &t.CameraID, &t.StreamSource, &t.Status, &t.LastCheckedAt, &t.ConsecutiveFailures)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("health: camera %s has no probeable stream source", cameraID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *HealthModel) ListStatuses(ctx context.Context, tenantID uuid.UUID) ([]*CameraHealthCurrent, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT tenant_id, camera_id, status, last_checked_at, last_success_at,
		       consecutive_failures, last_error_code, updated_at
		FROM camera_health_current
		WHERE tenant_id = $1
		ORDER BY last_checked_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("health: list statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*CameraHealthCurrent
	for rows.Next() {
		h, err := scanHealthCurrent(rows.Scan)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, h)
	}
	return statuses, rows.Err()
}

func scanHealthCurrent(scan func(...any) error) (*CameraHealthCurrent, error) {
	var h CameraHealthCurrent
	var lastSuccess pq.NullTime
	var lastError sql.NullString
	if err := scan(&h.TenantID, &h.CameraID, &h.Status, &h.LastCheckedAt, &lastSuccess,
		&h.ConsecutiveFailures, &lastError, &h.UpdatedAt); err != nil {
		return nil, err
	}
	if lastSuccess.Valid {
		h.LastSuccessAt = &lastSuccess.Time
	}
	h.LastErrorCode = lastError.String
	return &h, nil
}

func scanHealthAlert(scan func(...any) error) (*CameraAlert, error) {
	var a CameraAlert
	var ended, notified pq.NullTime
	if err := scan(&a.ID, &a.TenantID, &a.CameraID, &a.Type, &a.State, &a.StartedAt, &ended, &notified); err != nil {
		return nil, err
	}
	if ended.Valid {
		a.EndedAt = &ended.Time
	}
	if notified.Valid {
		a.LastNotifiedAt = &notified.Time
	}
	return &a, nil
}

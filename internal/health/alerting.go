package health

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

// outageAlertAfter is how long a camera must stay offline before an
// outage alert opens.
const outageAlertAfter = 5 * time.Minute

// AlertManager opens an outage alert for a camera that has been offline
// past the threshold and closes it again on the first successful probe.
type AlertManager struct {
	repo data.HealthRepository
}

func NewAlertManager(repo data.HealthRepository) *AlertManager {
	return &AlertManager{repo: repo}
}

// ProcessState applies the open/close transition for one probe outcome.
// At most one open alert of the outage type exists per camera.
func (a *AlertManager) ProcessState(ctx context.Context, tenantID, cameraID uuid.UUID, status data.CameraHealthStatus, consecutiveFailures int, lastSuccessAt *time.Time) error {
	const alertType = "offline_over_5m"

	active, err := a.repo.GetOpenAlert(ctx, cameraID, alertType)
	if err != nil {
		return err
	}

	if active != nil {
		if status == data.HealthStatusOnline {
			return a.repo.CloseAlert(ctx, active.ID)
		}
		return nil
	}

	if status != data.HealthStatusOffline {
		return nil
	}

	// Prefer the actual time since the last success; a camera that has
	// never succeeded falls back to the consecutive-failure count (one
	// probe a minute makes five failures roughly the threshold).
	var offlineFor time.Duration
	if lastSuccessAt != nil {
		offlineFor = time.Since(*lastSuccessAt)
	} else if consecutiveFailures >= 5 {
		offlineFor = outageAlertAfter + time.Minute
	}
	if offlineFor <= outageAlertAfter {
		return nil
	}

	return a.repo.UpsertAlert(ctx, &data.CameraAlert{
		TenantID:  tenantID,
		CameraID:  cameraID,
		Type:      alertType,
		State:     "open",
		StartedAt: time.Now(),
	})
}

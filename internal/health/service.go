// Package health keeps a per-camera record of whether each camera's
// stream source is actually reachable, independent of whether anyone is
// watching it: a probe scheduler, a bounded status history, and
// open/close alerts for sustained outages. A camera whose source is
// down produces no frames for the detection pipeline, so operators need
// to learn about it before a subscriber does.
package health

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

type Service struct {
	Repo    data.HealthRepository
	Prober  Prober
	History *HistoryManager
	Alerts  *AlertManager
}

func NewService(repo data.HealthRepository, prober Prober) *Service {
	return &Service{
		Repo:    repo,
		Prober:  prober,
		History: NewHistoryManager(repo),
		Alerts:  NewAlertManager(repo),
	}
}

// GetStatus returns the camera's most recent probe outcome, or nil when
// the camera has never been probed.
func (s *Service) GetStatus(ctx context.Context, cameraID uuid.UUID) (*data.CameraHealthCurrent, error) {
	return s.Repo.GetStatus(ctx, cameraID)
}

// ListTargets returns every probeable camera with its current state, for
// the scheduler's dispatch pass.
func (s *Service) ListTargets(ctx context.Context) ([]data.CameraHealthTarget, error) {
	return s.Repo.ListTargets(ctx)
}

// PerformCheck probes one camera's stream source and records the result:
// current status upsert, a history entry, and the outage alert
// transition. Runs on a scheduler worker goroutine.
func (s *Service) PerformCheck(ctx context.Context, tenantID, cameraID uuid.UUID, source string) {
	status, reason, rtt := s.Prober.Probe(ctx, tenantID, cameraID, source)

	current, err := s.Repo.GetStatus(ctx, cameraID)
	consecutive := 0
	var lastSuccess *time.Time
	if err == nil && current != nil {
		consecutive = current.ConsecutiveFailures
		lastSuccess = current.LastSuccessAt
	}

	if status == data.HealthStatusOnline {
		consecutive = 0
		now := time.Now()
		lastSuccess = &now
	} else {
		consecutive++
	}

	if err := s.Repo.UpsertStatus(ctx, &data.CameraHealthCurrent{
		TenantID:            tenantID,
		CameraID:            cameraID,
		Status:              status,
		LastCheckedAt:       time.Now(),
		LastSuccessAt:       lastSuccess,
		ConsecutiveFailures: consecutive,
		LastErrorCode:       reason,
		UpdatedAt:           time.Now(),
	}); err != nil {
		log.Printf("health: upsert status for camera %s: %v", cameraID, err)
	}

	if err := s.History.AddEntry(ctx, tenantID, cameraID, status, reason, rtt); err != nil {
		log.Printf("health: record history for camera %s: %v", cameraID, err)
	}

	if err := s.Alerts.ProcessState(ctx, tenantID, cameraID, status, consecutive, lastSuccess); err != nil {
		log.Printf("health: alert transition for camera %s: %v", cameraID, err)
	}
}

// ManualCheck triggers an immediate probe for one camera, detached from
// the scheduler's cadence. The probe runs asynchronously; the caller
// polls GetStatus for the outcome.
func (s *Service) ManualCheck(ctx context.Context, tenantID, cameraID uuid.UUID) error {
	target, err := s.Repo.GetTarget(ctx, cameraID)
	if err != nil {
		return err
	}
	go s.PerformCheck(context.Background(), tenantID, cameraID, target.StreamSource)
	return nil
}

func (s *Service) GetHistory(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]*data.CameraHealthHistory, error) {
	return s.Repo.GetHistory(ctx, cameraID, limit, offset)
}

func (s *Service) ListAlerts(ctx context.Context, tenantID uuid.UUID, state string) ([]*data.CameraAlert, error) {
	return s.Repo.ListAlerts(ctx, tenantID, state)
}

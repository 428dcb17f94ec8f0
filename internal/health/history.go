package health

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

// MaxHistoryPerCamera bounds the per-camera probe history; every insert
// prunes past it so the table can't grow without bound.
const MaxHistoryPerCamera = 200

// HistoryManager records one history row per probe, keeping RTT samples
// around for debugging a flapping source.
type HistoryManager struct {
	repo data.HealthRepository
}

func NewHistoryManager(repo data.HealthRepository) *HistoryManager {
	return &HistoryManager{repo: repo}
}

func (h *HistoryManager) AddEntry(ctx context.Context, tenantID, cameraID uuid.UUID, status data.CameraHealthStatus, reason string, rtt int) error {
	if err := h.repo.AddHistory(ctx, &data.CameraHealthHistory{
		TenantID:   tenantID,
		CameraID:   cameraID,
		OccurredAt: time.Now(),
		Status:     status,
		ReasonCode: reason,
		RTTMS:      rtt,
	}); err != nil {
		return err
	}
	return h.repo.PruneHistory(ctx, cameraID, MaxHistoryPerCamera)
}

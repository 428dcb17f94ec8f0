package health

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

// A probe failure past the failure threshold opens the outage alert.
func TestService_PerformCheck_OpensOutageAlert(t *testing.T) {
	mockRepo := new(MockHealthRepo)
	mockProber := new(MockProber)
	svc := NewService(mockRepo, mockProber)

	tid := uuid.New()
	cid := uuid.New()
	source := "rtsp://cam.local/stream"

	mockProber.On("Probe", mock.Anything, tid, cid, source).Return(data.HealthStatusOffline, "timeout", 0)

	// Four prior consecutive failures, never a success: this probe makes
	// five, which the alert manager treats as past the 5-minute mark.
	mockRepo.On("GetStatus", mock.Anything, cid).Return(&data.CameraHealthCurrent{
		ConsecutiveFailures: 4,
	}, nil)

	mockRepo.On("UpsertStatus", mock.Anything, mock.MatchedBy(func(h *data.CameraHealthCurrent) bool {
		return h.ConsecutiveFailures == 5 && h.Status == data.HealthStatusOffline
	})).Return(nil)
	mockRepo.On("AddHistory", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("PruneHistory", mock.Anything, cid, MaxHistoryPerCamera).Return(nil)

	mockRepo.On("GetOpenAlert", mock.Anything, cid, "offline_over_5m").Return(nil, nil)
	mockRepo.On("UpsertAlert", mock.Anything, mock.MatchedBy(func(a *data.CameraAlert) bool {
		return a.State == "open" && a.Type == "offline_over_5m"
	})).Return(nil)

	svc.PerformCheck(context.Background(), tid, cid, source)

	mockRepo.AssertExpectations(t)
	mockProber.AssertExpectations(t)
}

// A successful probe resets the failure count and closes the open alert.
func TestService_PerformCheck_RecoveryClosesAlert(t *testing.T) {
	mockRepo := new(MockHealthRepo)
	mockProber := new(MockProber)
	svc := NewService(mockRepo, mockProber)

	tid := uuid.New()
	cid := uuid.New()
	source := "rtsp://cam.local/stream"
	openAlert := &data.CameraAlert{ID: uuid.New(), State: "open"}

	mockProber.On("Probe", mock.Anything, tid, cid, source).Return(data.HealthStatusOnline, "ok", 15)

	mockRepo.On("GetStatus", mock.Anything, cid).Return(&data.CameraHealthCurrent{
		ConsecutiveFailures: 10,
		Status:              data.HealthStatusOffline,
		LastCheckedAt:       time.Now().Add(-time.Minute),
	}, nil)

	mockRepo.On("UpsertStatus", mock.Anything, mock.MatchedBy(func(h *data.CameraHealthCurrent) bool {
		return h.ConsecutiveFailures == 0 && h.Status == data.HealthStatusOnline
	})).Return(nil)
	mockRepo.On("AddHistory", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("PruneHistory", mock.Anything, cid, MaxHistoryPerCamera).Return(nil)

	mockRepo.On("GetOpenAlert", mock.Anything, cid, "offline_over_5m").Return(openAlert, nil)
	mockRepo.On("CloseAlert", mock.Anything, openAlert.ID).Return(nil)

	svc.PerformCheck(context.Background(), tid, cid, source)

	mockRepo.AssertExpectations(t)
}

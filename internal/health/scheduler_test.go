package health

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

func TestScheduler_DispatchesProbes(t *testing.T) {
	mockRepo := new(MockHealthRepo)
	mockProber := new(MockProber)
	svc := NewService(mockRepo, mockProber)

	scheduler := NewScheduler(SchedulerConfig{
		Interval:       100 * time.Millisecond,
		WorkerPoolSize: 2,
	}, svc)

	tid := uuid.New()
	cid := uuid.New()
	target := data.CameraHealthTarget{
		TenantID:      tid,
		CameraID:      cid,
		StreamSource:  "rtsp://cam.local/stream",
		Status:        data.HealthStatusOffline,
		LastCheckedAt: time.Now().Add(-10 * time.Minute),
	}

	mockRepo.On("ListTargets", mock.Anything).Return([]data.CameraHealthTarget{target}, nil)
	mockProber.On("Probe", mock.Anything, tid, cid, target.StreamSource).Return(data.HealthStatusOnline, "ok", 10)
	mockRepo.On("GetStatus", mock.Anything, cid).Return(nil, nil)
	mockRepo.On("UpsertStatus", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("AddHistory", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("PruneHistory", mock.Anything, cid, MaxHistoryPerCamera).Return(nil)
	mockRepo.On("GetOpenAlert", mock.Anything, cid, "offline_over_5m").Return(nil, nil)

	scheduler.Start()
	time.Sleep(300 * time.Millisecond)
	scheduler.Stop()
}

func TestScheduler_Backoff(t *testing.T) {
	s := &Scheduler{}
	now := time.Now()

	online := data.CameraHealthTarget{Status: data.HealthStatusOnline, LastCheckedAt: now.Add(-10 * time.Second)}
	assert.False(t, s.inBackoff(online), "healthy cameras probe every tick")

	failedRecently := data.CameraHealthTarget{
		Status:              data.HealthStatusOffline,
		LastCheckedAt:       now.Add(-30 * time.Second),
		ConsecutiveFailures: 1,
	}
	assert.True(t, s.inBackoff(failedRecently), "one failure backs off 60s")

	failedAWhileAgo := data.CameraHealthTarget{
		Status:              data.HealthStatusOffline,
		LastCheckedAt:       now.Add(-70 * time.Second),
		ConsecutiveFailures: 1,
	}
	assert.False(t, s.inBackoff(failedAWhileAgo))
}

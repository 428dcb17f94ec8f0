package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/sudharshan/ppe-monitor/internal/capture"
	"github.com/sudharshan/ppe-monitor/internal/clock"
	"github.com/sudharshan/ppe-monitor/internal/compliance"
	"github.com/sudharshan/ppe-monitor/internal/detect"
	"github.com/sudharshan/ppe-monitor/internal/detections"
	"github.com/sudharshan/ppe-monitor/internal/hub"
	"github.com/sudharshan/ppe-monitor/internal/track"
)

type fakeCameraStore struct {
	cam Camera
	err error
}

func (f *fakeCameraStore) Get(ctx context.Context, cameraID string) (Camera, error) {
	return f.cam, f.err
}

type fakeSource struct {
	frame []byte
}

func (s *fakeSource) NextFrame(ctx context.Context) ([]byte, error) { return s.frame, nil }
func (s *fakeSource) Close() error                                  { return nil }

type fakeDetector struct{}

func (fakeDetector) Detect(ctx context.Context, frame []byte) ([]compliance.Detection, error) {
	return nil, nil
}
func (fakeDetector) SetConfig(detect.Config) {}
func (fakeDetector) Config() detect.Config   { return detect.Config{} }
func (fakeDetector) Close() error            { return nil }

type fakeSubscriber struct {
	mu   sync.Mutex
	recv [][]byte
}

func (f *fakeSubscriber) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recv = append(f.recv, payload)
	return nil
}
func (f *fakeSubscriber) Close() {}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recv)
}

// alertIndex returns the position of the first "alert" message received,
// or -1 if none has arrived yet.
func (f *fakeSubscriber) alertIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, payload := range f.recv {
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			continue
		}
		if m["type"] == "alert" {
			return i
		}
	}
	return -1
}

func (f *fakeSubscriber) decode(t *testing.T, i int) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var m map[string]any
	require.NoError(t, json.Unmarshal(f.recv[i], &m))
	return m
}

const testCaptureScheme = "pipeline-test://fixed"

func init() {
	capture.Register(capture.KindURL, func(ctx context.Context, resource string, minHeight int) (capture.Source, error) {
		return &fakeSource{frame: []byte("jpeg-bytes")}, nil
	})
}

func TestManager_SubscribeStartsTaskAndBroadcastsConnectedStatus(t *testing.T) {
	h := hub.New()
	mgr := NewManager(Deps{
		Cameras:    &fakeCameraStore{cam: Camera{ID: "cam-1", Resource: testCaptureScheme, Name: "Dock A"}},
		Detector:   fakeDetector{},
		Hub:        h,
		Sink:       detections.NewSink(noopTxBeginner{}),
		Snapshots:  noopSnapshotWriter{},
		Clock:      clock.New(time.UTC),
		FileExists: func(string) bool { return false },
		Tuneables: Tuneables{
			TargetFPS:                1_000_000,
			ViolationPersistence:     DefaultViolationPersistence,
			ViolationCooldown:        DefaultViolationCooldown,
			ComplianceSampleInterval: DefaultComplianceInterval,
			StaleThreshold:           DefaultStaleThreshold,
			MaxMissedFrames:          30,
			IoUMatch:                 0.30,
			PPEOverlap:               0.50,
			MinCaptureHeight:         0,
			AnnotateQuality:          80,
			StaleSweepEveryNFrames:   1000,
		},
	})

	sub := &fakeSubscriber{}
	mgr.Subscribe(context.Background(), "cam-1", sub)

	deadline := time.Now().Add(2 * time.Second)
	for sub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	require.Greater(t, sub.count(), 0)
	mgr.Unsubscribe("cam-1", sub)
}

// violatingDetector reports the same worker missing a vest on every frame,
// so a subscriber that stays connected long enough observes exactly one
// persisted violation (given a short persistence window and a cooldown
// long enough to prevent a second one within the test).
type violatingDetector struct{}

func (violatingDetector) Detect(ctx context.Context, frame []byte) ([]compliance.Detection, error) {
	return []compliance.Detection{
		{Class: compliance.ClassPerson, Confidence: 0.9, Box: track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}},
		{Class: compliance.ClassNoVest, Confidence: 0.9, Box: track.Box{X1: 1, Y1: 1, X2: 8, Y2: 8}},
	}, nil
}
func (violatingDetector) SetConfig(detect.Config) {}
func (violatingDetector) Config() detect.Config   { return detect.Config{} }
func (violatingDetector) Close() error            { return nil }

// TestManager_BroadcastsFrameBeforeAlertForSameViolation guards the
// ordering guarantee that subscribers observe status, frame, and alert
// messages in the order the pipeline produced them: the frame that
// crosses the persistence threshold must reach subscribers before the
// alert message the resulting violation triggers, never after.
func TestManager_BroadcastsFrameBeforeAlertForSameViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO detection_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	h := hub.New()
	mgr := NewManager(Deps{
		Cameras:    &fakeCameraStore{cam: Camera{ID: "cam-1", Resource: testCaptureScheme, Name: "Dock A"}},
		Detector:   violatingDetector{},
		Hub:        h,
		Sink:       detections.NewSink(db),
		Snapshots:  noopSnapshotWriter{},
		Clock:      clock.New(time.UTC),
		FileExists: func(string) bool { return false },
		Tuneables: Tuneables{
			TargetFPS:                1_000,
			ViolationPersistence:     20 * time.Millisecond,
			ViolationCooldown:        10 * time.Second,
			ComplianceSampleInterval: time.Hour,
			StaleThreshold:           time.Hour,
			MaxMissedFrames:          30,
			IoUMatch:                 0.30,
			PPEOverlap:               0.50,
			MinCaptureHeight:         0,
			AnnotateQuality:          80,
			StaleSweepEveryNFrames:   1_000_000,
		},
	})

	sub := &fakeSubscriber{}
	mgr.Subscribe(context.Background(), "cam-1", sub)

	deadline := time.Now().Add(3 * time.Second)
	for sub.alertIndex() < 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	mgr.Unsubscribe("cam-1", sub)

	alertAt := sub.alertIndex()
	require.GreaterOrEqual(t, alertAt, 0, "expected an alert message to be broadcast")
	require.Greater(t, alertAt, 0, "a frame message must precede the alert for the same violation")

	frameMsg := sub.decode(t, alertAt-1)
	require.Equal(t, "frame", frameMsg["type"])
}

// noopTxBeginner satisfies detections.TxBeginner without a real database;
// RecordViolation/RecordCompliance log-and-return-false on its error. The
// tests that use it never reach the sink: no person is detected, the
// source never opens, or a fixed clock keeps the persistence window and
// the sampler interval from elapsing.
type noopTxBeginner struct{}

func (noopTxBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, errBeginUnsupported
}

var errBeginUnsupported = errors.New("pipeline test: no database configured")

type noopSnapshotWriter struct{}

func (noopSnapshotWriter) Write(ctx context.Context, cameraID, workerID string, at time.Time, jpeg []byte) (string, error) {
	return "", nil
}

// TestManager_SourceUnavailableBroadcastsSingleErrorAndStops covers the
// fatal open path: subscribers receive exactly one error message, no
// records are written, and the camera is left not running.
func TestManager_SourceUnavailableBroadcastsSingleErrorAndStops(t *testing.T) {
	h := hub.New()
	vt := NewViolationTracker(0, 0)
	mgr := NewManager(Deps{
		// Resource "0" classifies as a device index; no device adapter is
		// registered in tests, so capture.Open fails with
		// ErrSourceUnavailable.
		Cameras:    &fakeCameraStore{cam: Camera{ID: "cam-down", Resource: "0", Name: "Broken"}},
		Detector:   fakeDetector{},
		Hub:        h,
		Sink:       detections.NewSink(noopTxBeginner{}),
		Snapshots:  noopSnapshotWriter{},
		Clock:      clock.New(time.UTC),
		Violations: vt,
		FileExists: func(string) bool { return false },
		Tuneables:  DefaultTuneables(),
	})

	sub := &fakeSubscriber{}
	mgr.Subscribe(context.Background(), "cam-down", sub)

	deadline := time.Now().Add(2 * time.Second)
	for sub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	require.Equal(t, 1, sub.count(), "exactly one error message")
	msg := sub.decode(t, 0)
	require.Equal(t, "error", msg["type"])

	for len(mgr.Active()) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Empty(t, mgr.Active())
	require.False(t, vt.HasCamera("cam-down"))
	mgr.Unsubscribe("cam-down", sub)
}

// TestManager_TeardownClearsWorkerKeys covers the last-unsubscribe exit:
// the task stops within an iteration boundary and no (camera, worker)
// keys survive teardown, so a reconnect starts with fresh cooldowns.
func TestManager_TeardownClearsWorkerKeys(t *testing.T) {
	h := hub.New()
	vt := NewViolationTracker(time.Hour, time.Hour)
	tun := DefaultTuneables()
	tun.TargetFPS = 1_000
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewManager(Deps{
		Cameras:    &fakeCameraStore{cam: Camera{ID: "cam-1", Resource: testCaptureScheme, Name: "Dock A"}},
		Detector:   violatingDetector{},
		Hub:        h,
		Sink:       detections.NewSink(noopTxBeginner{}),
		Snapshots:  noopSnapshotWriter{},
		Clock:      &clock.Fake{WallTime: fixed, MonoTime: fixed},
		Violations: vt,
		FileExists: func(string) bool { return false },
		Tuneables:  tun,
	})

	sub := &fakeSubscriber{}
	mgr.Subscribe(context.Background(), "cam-1", sub)

	deadline := time.Now().Add(2 * time.Second)
	for vt.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Greater(t, vt.Len(), 0, "the violating worker should be tracked while the stream is live")

	mgr.Unsubscribe("cam-1", sub)
	for vt.HasCamera("cam-1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.False(t, vt.HasCamera("cam-1"))
	require.Empty(t, mgr.Active())
}

package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/sudharshan/ppe-monitor/internal/annotate"
	"github.com/sudharshan/ppe-monitor/internal/capture"
	"github.com/sudharshan/ppe-monitor/internal/clock"
	"github.com/sudharshan/ppe-monitor/internal/compliance"
	"github.com/sudharshan/ppe-monitor/internal/detect"
	"github.com/sudharshan/ppe-monitor/internal/detections"
	"github.com/sudharshan/ppe-monitor/internal/events"
	"github.com/sudharshan/ppe-monitor/internal/hub"
	"github.com/sudharshan/ppe-monitor/internal/metrics"
	"github.com/sudharshan/ppe-monitor/internal/snapshot"
	"github.com/sudharshan/ppe-monitor/internal/track"
)

// RuleOverride is the collaborator contract for the optional Lua
// classification override (internal/rules); nil means no override is
// configured and the canonical classification applies untouched.
type RuleOverride interface {
	Apply(e *compliance.Evaluation)
}

// Camera is the read-only camera descriptor the pipeline consumes; it is
// created and owned by an external admin flow.
type Camera struct {
	ID       string
	Resource string
	Name     string
	Location string
}

// CameraStore is the collaborator contract for reading camera
// descriptors; the core never writes to it.
type CameraStore interface {
	Get(ctx context.Context, cameraID string) (Camera, error)
}

// Tuneables collects the pipeline's configuration surface.
type Tuneables struct {
	TargetFPS                int
	ViolationPersistence     time.Duration
	ViolationCooldown        time.Duration
	ComplianceSampleInterval time.Duration
	StaleThreshold           time.Duration
	MaxMissedFrames          int
	IoUMatch                 float64
	PPEOverlap               float64
	MinCaptureHeight         int
	AnnotateQuality          int
	StaleSweepEveryNFrames   int
}

// DefaultTuneables returns the baseline settings.
func DefaultTuneables() Tuneables {
	return Tuneables{
		TargetFPS:                30,
		ViolationPersistence:     DefaultViolationPersistence,
		ViolationCooldown:        DefaultViolationCooldown,
		ComplianceSampleInterval: DefaultComplianceInterval,
		StaleThreshold:           DefaultStaleThreshold,
		MaxMissedFrames:          track.DefaultMaxMissedFrames,
		IoUMatch:                 track.DefaultIoUMatch,
		PPEOverlap:               compliance.DefaultPPEOverlap,
		MinCaptureHeight:         720,
		AnnotateQuality:          95,
		StaleSweepEveryNFrames:   150,
	}
}

// Deps are the pipeline task's external collaborators, constructed once
// at startup and passed in explicitly; apart from the capture adapter
// registry and the Prometheus series in internal/metrics, no
// package-level state is reachable from pipeline code.
type Deps struct {
	Cameras    CameraStore
	Detector   detect.Model
	Hub        *hub.Hub
	Sink       *detections.Sink
	Snapshots  snapshot.Writer
	Events     *events.Publisher
	Clock      clock.Clock
	Violations *ViolationTracker
	Mirror     *KeyMirror // optional Redis mirror of per-worker keys
	FileExists func(string) bool
	Tuneables  Tuneables
	Rules      RuleOverride
}

type cameraState struct {
	mu      sync.Mutex
	running bool
}

// Manager is the stream lifecycle manager: at most one pipeline
// task per camera, started on first subscriber and torn down on last.
type Manager struct {
	deps Deps

	mu   sync.Mutex
	cams map[string]*cameraState
}

func NewManager(deps Deps) *Manager {
	if deps.Violations == nil {
		deps.Violations = NewViolationTracker(deps.Tuneables.ViolationPersistence, deps.Tuneables.ViolationCooldown)
	}
	return &Manager{deps: deps, cams: make(map[string]*cameraState)}
}

// Active returns the camera IDs with a running pipeline task, for
// read-only admin/status surfaces (e.g. a stream-status endpoint).
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.cams))
	for id, cs := range m.cams {
		cs.mu.Lock()
		running := cs.running
		cs.mu.Unlock()
		if running {
			out = append(out, id)
		}
	}
	return out
}

// SubscriberCount reports the current hub subscriber count for cameraID,
// for the same admin/status surfaces as Active.
func (m *Manager) SubscriberCount(cameraID string) int {
	return m.deps.Hub.Count(cameraID)
}

func (m *Manager) stateFor(cameraID string) *cameraState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.cams[cameraID]
	if !ok {
		cs = &cameraState{}
		m.cams[cameraID] = cs
	}
	return cs
}

// Subscribe registers sub as a subscriber of cameraID and ensures a
// pipeline task is running for it. Returns the current
// subscriber count.
func (m *Manager) Subscribe(ctx context.Context, cameraID string, sub hub.Subscriber) int {
	n := m.deps.Hub.Subscribe(cameraID, sub)
	m.ensureRunning(cameraID)
	return n
}

// Unsubscribe removes sub. The owning task observes the resulting
// subscriber count at its next frame-iteration boundary and exits; no
// forced cancellation is required for correctness.
func (m *Manager) Unsubscribe(cameraID string, sub hub.Subscriber) int {
	return m.deps.Hub.Unsubscribe(cameraID, sub)
}

// ensureRunning spawns the camera's pipeline task if one isn't already
// running, under a per-camera lock that serializes start/stop
// transitions so at most one task ever owns a camera at a time.
func (m *Manager) ensureRunning(cameraID string) {
	cs := m.stateFor(cameraID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.running {
		return
	}
	cs.running = true

	go func() {
		// Idempotently resets running=false on every exit path,
		// including a panic, so a crashed task never wedges the
		// camera in a running state.
		defer func() {
			if r := recover(); r != nil {
				log.Printf("pipeline: camera %s task panicked: %v", cameraID, r)
			}
			cs.mu.Lock()
			cs.running = false
			cs.mu.Unlock()
			m.deps.Violations.ClearCamera(cameraID)
			if m.deps.Mirror != nil {
				m.deps.Mirror.ClearCamera(cameraID)
			}
		}()
		m.runCamera(context.Background(), cameraID)
	}()
}

func (m *Manager) runCamera(ctx context.Context, cameraID string) {
	cam, err := m.deps.Cameras.Get(ctx, cameraID)
	if err != nil {
		m.deps.Hub.BroadcastError(cameraID, "camera not found")
		return
	}

	src, err := capture.Open(ctx, cam.Resource, m.deps.Tuneables.MinCaptureHeight, m.deps.FileExists)
	if err != nil {
		m.deps.Hub.BroadcastError(cameraID, "source unavailable")
		return
	}
	defer src.Close()

	m.deps.Hub.BroadcastStatus(cameraID, "connected: "+cam.Name)

	tuneables := m.deps.Tuneables
	tracker := track.New(tuneables.IoUMatch, tuneables.MaxMissedFrames)
	sampler := NewSampler(m.deps.Clock.Monotonic(), tuneables.ComplianceSampleInterval)
	frameInterval := time.Second / time.Duration(max1(tuneables.TargetFPS))
	frameCount := 0

	for m.deps.Hub.Count(cameraID) > 0 {
		start := time.Now()

		frame, ferr := src.NextFrame(ctx)
		if errors.Is(ferr, capture.ErrEOF) {
			continue
		}
		if errors.Is(ferr, capture.ErrTransientRead) {
			log.Printf("pipeline: camera %s read error on live stream: %v", cameraID, ferr)
			break
		}
		if ferr != nil {
			log.Printf("pipeline: camera %s fatal read error: %v", cameraID, ferr)
			break
		}

		inferStart := time.Now()
		dets, derr := m.deps.Detector.Detect(ctx, frame)
		metrics.RecordInferenceLatency(cameraID, float64(time.Since(inferStart).Milliseconds()))
		if derr != nil {
			log.Printf("pipeline: camera %s detector error: %v", cameraID, derr)
			metrics.RecordFrameDrop(cameraID, 1)
			dets = nil
		} else {
			metrics.RecordInference(cameraID)
		}

		persons := personsOf(dets)
		tracked := tracker.Update(persons)
		evals, agg := compliance.Evaluate(tracked, dets, tuneables.PPEOverlap)
		if m.deps.Rules != nil {
			for i := range evals {
				m.deps.Rules.Apply(&evals[i])
			}
			agg = compliance.Summarize(evals)
		}

		annotated, aerr := annotate.Frame(frame, evals, tuneables.AnnotateQuality)
		if aerr != nil {
			annotated = frame
		}

		mono := m.deps.Clock.Monotonic()
		wall := m.deps.Clock.Now()

		m.broadcastFrame(cameraID, annotated, agg, wall)
		metrics.RecordFrameBroadcast(cameraID)

		m.processViolations(ctx, cameraID, evals, annotated, mono, wall)

		if sampler.Due(mono) {
			m.processComplianceSamples(ctx, cameraID, evals, wall)
		}

		frameCount++
		if tuneables.StaleSweepEveryNFrames > 0 && frameCount%tuneables.StaleSweepEveryNFrames == 0 {
			m.deps.Violations.Sweep(mono, tuneables.StaleThreshold)
		}

		if elapsed := time.Since(start); elapsed < frameInterval {
			time.Sleep(frameInterval - elapsed)
		}
	}
}

func (m *Manager) processViolations(ctx context.Context, cameraID string, evals []compliance.Evaluation, annotated []byte, mono, wall time.Time) {
	for _, e := range evals {
		key := Key{CameraID: cameraID, WorkerID: e.WorkerID}
		emit := m.deps.Violations.Observe(key, e.Status, mono)
		if m.deps.Mirror != nil {
			if ts, ok := m.deps.Violations.Timers(key); ok {
				m.deps.Mirror.Touch(key, ts, mono, wall)
			}
		}
		if !emit {
			continue
		}

		workerID := strconv.Itoa(e.WorkerID)
		url, werr := m.deps.Snapshots.Write(ctx, cameraID, workerID, wall, annotated)
		if werr != nil {
			log.Printf("pipeline: camera %s snapshot write failed: %v", cameraID, werr)
			url = ""
		}

		sev := detections.SeverityFor(e.Kind)
		detID, alertID, ok := m.deps.Sink.RecordViolation(ctx, detections.DetectionFields{
			CameraID:          cameraID,
			Timestamp:         wall,
			WorkerID:          workerID,
			PersonDetected:    true,
			HardhatDetected:   e.Hardhat,
			NoHardhatDetected: e.NoHardhat,
			VestDetected:      e.Vest,
			NoVestDetected:    e.NoVest,
			IsCompliant:       false,
			ConfidenceScores:  toFloatMap(e.Confidence),
			SnapshotURL:       url,
			ViolationType:     string(e.Kind),
		}, detections.AlertFields{
			Severity: sev,
			Message:  violationMessage(workerID, e.Kind),
		})
		if !ok {
			continue
		}
		metrics.RecordViolation(cameraID, string(e.Kind))

		m.deps.Hub.Broadcast(cameraID, hub.AlertMessage{
			Type:     hub.TypeAlert,
			CameraID: cameraID,
			Alert: hub.AlertPayload{
				ID:        alertID,
				Severity:  string(sev),
				Message:   violationMessage(workerID, e.Kind),
				Timestamp: wall.Unix(),
			},
		})
		if m.deps.Events != nil {
			m.deps.Events.PublishViolation(events.ViolationEvent{
				CameraID:      cameraID,
				WorkerID:      workerID,
				DetectionID:   detID,
				AlertID:       alertID,
				Severity:      string(sev),
				ViolationType: string(e.Kind),
				Timestamp:     wall,
			})
		}
	}
}

func (m *Manager) processComplianceSamples(ctx context.Context, cameraID string, evals []compliance.Evaluation, wall time.Time) {
	for _, e := range evals {
		if e.Status != compliance.Compliant {
			continue
		}
		if _, ok := m.deps.Sink.RecordCompliance(ctx, detections.DetectionFields{
			CameraID:         cameraID,
			Timestamp:        wall,
			WorkerID:         strconv.Itoa(e.WorkerID),
			PersonDetected:   true,
			HardhatDetected:  e.Hardhat,
			VestDetected:     e.Vest,
			IsCompliant:      true,
			ConfidenceScores: toFloatMap(e.Confidence),
		}); ok {
			metrics.RecordComplianceSample(cameraID)
		}
	}
}

func (m *Manager) broadcastFrame(cameraID string, annotated []byte, agg compliance.Aggregate, wall time.Time) {
	m.deps.Hub.Broadcast(cameraID, hub.FrameMessage{
		Type:     hub.TypeFrame,
		CameraID: cameraID,
		Frame:    encodeBase64(annotated),
		Results: hub.FrameResults{
			DetectedClasses:  agg.DetectedClasses,
			IsCompliant:      agg.ViolationCount == 0 && agg.TotalWorkers > 0,
			SafetyStatus:     agg.Status,
			ViolationType:    agg.ViolationType,
			ConfidenceScores: agg.ConfidenceScores,
			PersonDetected:   agg.TotalWorkers > 0,
			PersonCount:      agg.TotalWorkers,
			IsPartial:        agg.UnknownCount > 0,
			PartialReason:    agg.PartialReason,
		},
		Timestamp: wall.UnixMilli(),
	})
}

func personsOf(dets []compliance.Detection) []track.Person {
	var out []track.Person
	for _, d := range dets {
		if d.Class == compliance.ClassPerson {
			out = append(out, track.Person{Box: d.Box, Confidence: d.Confidence})
		}
	}
	return out
}

func toFloatMap(m map[compliance.Class]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func violationMessage(workerID string, kind compliance.ViolationKind) string {
	switch kind {
	case compliance.MissingBoth:
		return "worker " + workerID + " missing hardhat and vest"
	case compliance.MissingHardhat:
		return "worker " + workerID + " missing hardhat"
	case compliance.MissingVest:
		return "worker " + workerID + " missing vest"
	default:
		return "worker " + workerID + " in violation"
	}
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func max1(fps int) int {
	if fps <= 0 {
		return 1
	}
	return fps
}

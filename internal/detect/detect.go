// Package detect defines the PPE detector facade contract: an opaque
// model that turns a frame into labelled boxes, with hot-reloadable
// tuneables and failure semantics that never propagate into the pipeline.
package detect

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sudharshan/ppe-monitor/internal/compliance"
)

// ErrModelLoad is returned by a Model backend that cannot be constructed.
// Per the facade contract, this is fatal: the pipeline refuses to start
// rather than surfacing it per-frame.
var ErrModelLoad = fmt.Errorf("detect: model load failed")

// Config holds the detector's hot-reloadable tuneables.
type Config struct {
	Device              string  `yaml:"device"`       // "cpu" or "cuda"
	InputSize           int     `yaml:"input_size"`   // one of {320,416,512,640,1280}
	JPEGQuality         int     `yaml:"jpeg_quality"` // outbound encoding quality
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NMSIoU              float64 `yaml:"nms_iou"`
	MaxDetections       int     `yaml:"max_detections"`
}

// DefaultConfig returns the baseline tuneables.
func DefaultConfig() Config {
	return Config{
		Device:              "cpu",
		InputSize:           640,
		JPEGQuality:         95,
		ConfidenceThreshold: 0.50,
		NMSIoU:              0.45,
		MaxDetections:       100,
	}
}

// Model is the detector contract. It must be safe for concurrent use
// from multiple per-camera tasks. Changing Config affects only calls
// made after the update returns.
type Model interface {
	Detect(ctx context.Context, frame []byte) ([]compliance.Detection, error)
	SetConfig(Config)
	Config() Config
	Close() error
}

// ConfigStore holds the live Config behind a pointer swap, so SetConfig
// never blocks an in-flight Detect call.
type ConfigStore struct {
	v atomic.Pointer[Config]
}

func NewConfigStore(initial Config) *ConfigStore {
	s := &ConfigStore{}
	s.v.Store(&initial)
	return s
}

func (s *ConfigStore) Get() Config  { return *s.v.Load() }
func (s *ConfigStore) Set(c Config) { s.v.Store(&c) }

// Hot reload of Config from the service configuration file lives in
// internal/config (WatchDetector), which re-parses the detector section
// on write and swaps it in through SetConfig.

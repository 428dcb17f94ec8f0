// Package config loads the service's YAML configuration with env-var
// overrides, centralized into one loader instead of per-phase ad-hoc
// os.ReadFile calls in main. The detector's hot-reloadable slice is
// watched with fsnotify so an operator edit takes effect without a
// restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sudharshan/ppe-monitor/internal/detect"
	"github.com/sudharshan/ppe-monitor/internal/pipeline"
)

// Database holds the Postgres connection fields.
type Database struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Server holds top-level HTTP/service settings.
type Server struct {
	Port     string `yaml:"port"`
	Timezone string `yaml:"timezone"`
}

// Detector mirrors detect.Config on the wire, plus the backend selector
// and remote-service address.
type Detector struct {
	Backend             string  `yaml:"backend"` // "local", "remote", or "onnx"
	RemoteAddr          string  `yaml:"remote_addr"`
	ModelPath           string  `yaml:"model_path"`
	Device              string  `yaml:"device"`
	InputSize           int     `yaml:"input_size"`
	JPEGQuality         int     `yaml:"jpeg_quality"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NMSIoU              float64 `yaml:"nms_iou"`
	MaxDetections       int     `yaml:"max_detections"`
}

func (d Detector) toDetectConfig() detect.Config {
	cfg := detect.DefaultConfig()
	if d.Device != "" {
		cfg.Device = d.Device
	}
	if d.InputSize != 0 {
		cfg.InputSize = d.InputSize
	}
	if d.JPEGQuality != 0 {
		cfg.JPEGQuality = d.JPEGQuality
	}
	if d.ConfidenceThreshold != 0 {
		cfg.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if d.NMSIoU != 0 {
		cfg.NMSIoU = d.NMSIoU
	}
	if d.MaxDetections != 0 {
		cfg.MaxDetections = d.MaxDetections
	}
	return cfg
}

// Pipeline mirrors pipeline.Tuneables on the wire, durations expressed
// in whole seconds to keep the YAML readable.
type Pipeline struct {
	TargetFPS                   int     `yaml:"target_fps"`
	ViolationPersistenceSec     int     `yaml:"violation_persistence_sec"`
	ViolationCooldownSec        int     `yaml:"violation_cooldown_sec"`
	ComplianceSampleIntervalSec int     `yaml:"compliance_sample_interval_sec"`
	StaleThresholdSec           int     `yaml:"stale_threshold_sec"`
	MaxMissedFrames             int     `yaml:"max_missed_frames"`
	IoUMatch                    float64 `yaml:"iou_match"`
	PPEOverlap                  float64 `yaml:"ppe_overlap"`
	MinCaptureHeight            int     `yaml:"min_capture_height"`
}

func (p Pipeline) toTuneables() pipeline.Tuneables {
	t := pipeline.DefaultTuneables()
	if p.TargetFPS != 0 {
		t.TargetFPS = p.TargetFPS
	}
	if p.ViolationPersistenceSec != 0 {
		t.ViolationPersistence = time.Duration(p.ViolationPersistenceSec) * time.Second
	}
	if p.ViolationCooldownSec != 0 {
		t.ViolationCooldown = time.Duration(p.ViolationCooldownSec) * time.Second
	}
	if p.ComplianceSampleIntervalSec != 0 {
		t.ComplianceSampleInterval = time.Duration(p.ComplianceSampleIntervalSec) * time.Second
	}
	if p.StaleThresholdSec != 0 {
		t.StaleThreshold = time.Duration(p.StaleThresholdSec) * time.Second
	}
	if p.MaxMissedFrames != 0 {
		t.MaxMissedFrames = p.MaxMissedFrames
	}
	if p.IoUMatch != 0 {
		t.IoUMatch = p.IoUMatch
	}
	if p.PPEOverlap != 0 {
		t.PPEOverlap = p.PPEOverlap
	}
	if p.MinCaptureHeight != 0 {
		t.MinCaptureHeight = p.MinCaptureHeight
	}
	return t
}

// Snapshot selects between the local-disk and MinIO-backed writers.
type Snapshot struct {
	Backend       string `yaml:"backend"` // "local" or "minio"
	BaseDir       string `yaml:"base_dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	UseSSL        bool   `yaml:"use_ssl"`
}

// Rules enables the optional Lua override hook.
type Rules struct {
	ScriptPath string `yaml:"script_path"`
}

// Events configures the best-effort NATS violation publisher.
type Events struct {
	NatsURL    string `yaml:"nats_url"`
	Subject    string `yaml:"subject"`
	MaxRetries int    `yaml:"max_retries"`
}

// Config is the full service configuration tree loaded from
// config/default.yaml. A fixed set of fields can be overridden by
// environment variables (e.g. DB_HOST); applyEnv holds the list.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	JWT struct {
		SigningKey string `yaml:"signing_key"`
	} `yaml:"jwt"`
	Detector Detector `yaml:"detector"`
	Pipeline Pipeline `yaml:"pipeline"`
	Snapshot Snapshot `yaml:"snapshot"`
	Rules    Rules    `yaml:"rules"`
	Events   Events   `yaml:"events"`
}

// Default returns baseline settings used when no YAML file is present.
func Default() Config {
	return Config{
		Server:   Server{Port: "8080", Timezone: "UTC"},
		Database: Database{Host: "localhost", User: "postgres", Name: "ppe_monitor"},
		Detector: Detector{Backend: "local", Device: "cpu", InputSize: 640, JPEGQuality: 95, ConfidenceThreshold: 0.5, NMSIoU: 0.45, MaxDetections: 100},
		Pipeline: Pipeline{},
		Snapshot: Snapshot{Backend: "local", BaseDir: "data", PublicBaseURL: "/static"},
		Events:   Events{Subject: "ppe.violations", MaxRetries: 3},
	}
}

// DetectConfig projects the loaded Detector settings to detect.Config.
func (c Config) DetectConfig() detect.Config { return c.Detector.toDetectConfig() }

// Tuneables projects the loaded Pipeline settings to pipeline.Tuneables.
func (c Config) Tuneables() pipeline.Tuneables { return c.Pipeline.toTuneables() }

// Load reads path (defaulting fields not present), then applies a small
// set of env-var overrides for secrets that should never live in a
// committed YAML file, keeping an env-first posture for
// DB_HOST/DB_USER/DB_PASSWORD/DB_NAME/REDIS_ADDR/JWT_SIGNING_KEY.
// A .env file in the working directory is loaded first (if present) via
// godotenv, without overriding variables already set in the real
// environment, so production deployments are unaffected.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, uerr)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.JWT.SigningKey = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Events.NatsURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DETECTOR_CONFIDENCE_THRESHOLD"); v != "" {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil {
			cfg.Detector.ConfidenceThreshold = f
		}
	}
}

// Watcher hot-reloads the detector section of path on write, updating
// model's live Config in place. Every other section is read once at startup.
type Watcher struct {
	mu     sync.Mutex
	path   string
	model  detect.Model
	watch  *fsnotify.Watcher
	closed bool
}

// WatchDetector starts watching path for writes and applies the parsed
// Detector section to model on each change. Parse errors are logged by
// the caller-supplied onError and leave model's config unchanged.
func WatchDetector(path string, model detect.Model, onError func(error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	cw := &Watcher{path: path, model: model, watch: w}
	go cw.loop(onError)
	return cw, nil
}

func (w *Watcher) loop(onError func(error)) {
	for event := range w.watch.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		cfg, err := Load(w.path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		w.model.SetConfig(cfg.DetectConfig())
	}
}

// Close stops the watcher; safe to call once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watch.Close()
}

package detect

import (
	"context"
	"sync"

	"github.com/sudharshan/ppe-monitor/internal/compliance"
)

// Backend is the narrow per-frame inference function a concrete detector
// implementation supplies; it never returns a partial result mixed with
// an error — on failure the caller treats the frame as empty.
type Backend func(ctx context.Context, frame []byte, cfg Config) ([]compliance.Detection, error)

// Local is a Model that runs Backend in-process, guarded only by the
// Config swap (Backend itself must be safe for concurrent invocation,
// matching the facade's "thread-safe or pooled" contract).
type Local struct {
	cfg     *ConfigStore
	backend Backend
	mu      sync.Mutex // serializes Close against in-flight Detect
	closed  bool
	closeFn func() error
}

// NewLocal wraps backend with config management. backend is invoked
// under no lock: callers needing serialized access to e.g. a single GPU
// context must do so inside backend itself.
func NewLocal(backend Backend, cfg Config) *Local {
	return &Local{cfg: NewConfigStore(cfg), backend: backend}
}

func (l *Local) Detect(ctx context.Context, frame []byte) ([]compliance.Detection, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, nil
	}
	return l.backend(ctx, frame, l.cfg.Get())
}

func (l *Local) SetConfig(c Config) { l.cfg.Set(c) }
func (l *Local) Config() Config     { return l.cfg.Get() }

// OnClose registers fn to run once when the model is closed, so a
// backend holding native resources (e.g. an ONNX Runtime session) is
// released with the facade that wraps it.
func (l *Local) OnClose(fn func() error) {
	l.mu.Lock()
	l.closeFn = fn
	l.mu.Unlock()
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.closeFn != nil {
		return l.closeFn()
	}
	return nil
}

// Package onnx provides a Backend (see internal/detect) that runs PPE
// detection through an embedded ONNX Runtime session, for operators who
// want an in-process model instead of internal/detect/remote's gRPC
// backend.
package onnx

import (
	"context"
	"fmt"
	"sync"

	"github.com/sudharshan/ppe-monitor/internal/compliance"
	"github.com/sudharshan/ppe-monitor/internal/detect"
	ort "github.com/yalue/onnxruntime_go"
)

// Session wraps an onnxruntime_go advanced session for a single PPE
// detection model. Construction is the only place that can fail fatally
// (detect.ErrModelLoad); per-frame errors never reach here unwrapped.
type Session struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []compliance.Class
}

// Options configures the session's fixed input/output tensor shapes,
// which onnxruntime_go requires to be declared up front.
type Options struct {
	ModelPath   string
	InputShape  ort.Shape
	OutputShape ort.Shape
	Labels      []compliance.Class
}

// DefaultOptions returns Options for a PPE model exported with the
// common (1, 3, S, S) image input and a postprocessed (1, N, 6) output
// of (x1, y1, x2, y2, confidence, class) rows, labelled with the fixed
// PPE vocabulary in its training order.
func DefaultOptions(modelPath string, inputSize, maxDetections int) Options {
	return Options{
		ModelPath:   modelPath,
		InputShape:  ort.NewShape(1, 3, int64(inputSize), int64(inputSize)),
		OutputShape: ort.NewShape(1, int64(maxDetections), 6),
		Labels: []compliance.Class{
			compliance.ClassPerson,
			compliance.ClassHardhat,
			compliance.ClassNoHardhat,
			compliance.ClassVest,
			compliance.ClassNoVest,
		},
	}
}

// New constructs a Session. It returns detect.ErrModelLoad wrapped with
// the underlying cause on any failure to initialize the runtime or load
// the model, matching the facade's "refuses to start" contract.
func New(opts Options) (*Session, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: initialize onnxruntime: %v", detect.ErrModelLoad, err)
	}

	input, err := ort.NewEmptyTensor[float32](opts.InputShape)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate input tensor: %v", detect.ErrModelLoad, err)
	}
	output, err := ort.NewEmptyTensor[float32](opts.OutputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("%w: allocate output tensor: %v", detect.ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("%w: load model %s: %v", detect.ErrModelLoad, opts.ModelPath, err)
	}

	return &Session{session: session, input: input, output: output, labels: opts.Labels}, nil
}

// Backend adapts Session to the detect.Backend function signature so it
// can be wrapped by detect.NewLocal.
func (s *Session) Backend() detect.Backend {
	return func(ctx context.Context, frame []byte, cfg detect.Config) ([]compliance.Detection, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := preprocessInto(frame, cfg.InputSize, s.input); err != nil {
			return nil, fmt.Errorf("onnx: preprocess: %w", err)
		}
		if err := s.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx: inference: %w", err)
		}
		return decodeDetections(s.output, s.labels, cfg.ConfidenceThreshold, cfg.NMSIoU, cfg.MaxDetections), nil
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Destroy()
	s.input.Destroy()
	s.output.Destroy()
	return nil
}

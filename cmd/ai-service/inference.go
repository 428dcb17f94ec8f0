package main

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	detectv1 "github.com/sudharshan/ppe-monitor/gen/go/detect/v1"
	"github.com/sudharshan/ppe-monitor/internal/detect"
	"github.com/sudharshan/ppe-monitor/internal/detect/onnx"
)

// Detector produces PPE detections for a frame through an embedded ONNX
// Runtime session, degrading to a mock scene when no weights file is
// present on disk so the service is usable without GPU hardware.
type Detector struct {
	modelDir  string
	inputSize int
	backend   detect.Backend // nil in mock mode
	session   *onnx.Session
}

// NewDetector checks modelDir for PPE weights and loads the first one
// that initializes; it never fails to start. The "unrecoverable model
// load refuses to start" rule applies to the in-process backend inside
// the pipeline server, not this process, which exists precisely so a
// PPE demo fleet can run without local weights. inputSize and maxDetections
// fix the session's tensor shapes up front; per-request input_size is
// ignored for that reason.
func NewDetector(modelDir string, inputSize, maxDetections int) *Detector {
	candidates := []string{
		filepath.Join(modelDir, "ppe_yolo.onnx"),
		filepath.Join(modelDir, "ppe-detector.onnx"),
		filepath.Join(modelDir, "hardhat_vest.onnx"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			continue
		}
		sess, err := onnx.New(onnx.DefaultOptions(c, inputSize, maxDetections))
		if err != nil {
			log.Printf("[ai-service] weights at %s failed to load: %v", c, err)
			continue
		}
		log.Printf("[ai-service] loaded weights from %s", c)
		return &Detector{modelDir: modelDir, inputSize: inputSize, backend: sess.Backend(), session: sess}
	}
	log.Printf("[ai-service] no usable weights in %s, serving mock PPE detections", modelDir)
	return &Detector{modelDir: modelDir, inputSize: inputSize}
}

func (d *Detector) ModelLoaded() bool { return d.backend != nil }

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Close()
	}
}

// Detect returns boxes drawn from the fixed PPE vocabulary (Person,
// Hardhat, NoHardhat, Vest, NoVest) for one JPEG frame. In mock mode it
// derives a scene from the frame's own dimensions rather than a fixed
// fixture, so a multi-camera demo still looks varied per stream.
func (d *Detector) Detect(ctx context.Context, frame []byte, confThreshold, nmsIoU float64, maxDetections int) []*detectv1.Detection {
	if d.backend != nil {
		cfg := detect.DefaultConfig()
		cfg.InputSize = d.inputSize
		if confThreshold > 0 {
			cfg.ConfidenceThreshold = confThreshold
		}
		if nmsIoU > 0 {
			cfg.NMSIoU = nmsIoU
		}
		if maxDetections > 0 {
			cfg.MaxDetections = maxDetections
		}
		dets, err := d.backend(ctx, frame, cfg)
		if err != nil {
			log.Printf("[ai-service] inference failed: %v", err)
			return nil
		}
		out := make([]*detectv1.Detection, 0, len(dets))
		for _, det := range dets {
			out = append(out, &detectv1.Detection{
				ClassName:  string(det.Class),
				Confidence: det.Confidence,
				Box:        &detectv1.Box{X1: det.Box.X1, Y1: det.Box.Y1, X2: det.Box.X2, Y2: det.Box.Y2},
			})
		}
		return out
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil
	}
	dets := mockScene(img.Bounds())
	if maxDetections > 0 && len(dets) > maxDetections {
		dets = dets[:maxDetections]
	}
	return dets
}

func mockScene(bounds image.Rectangle) []*detectv1.Detection {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if w <= 0 || h <= 0 {
		return nil
	}

	var out []*detectv1.Detection
	numWorkers := 1 + rand.Intn(3)
	for i := 0; i < numWorkers; i++ {
		person := randomBox(w, h, 0.18, 0.5)
		out = append(out, &detectv1.Detection{
			ClassName:  "Person",
			Confidence: 0.70 + rand.Float64()*0.25,
			Box:        person,
		})

		headBox := subRegion(person, 0.0, 0.30)
		if rand.Float32() < 0.75 {
			out = append(out, &detectv1.Detection{ClassName: "Hardhat", Confidence: 0.6 + rand.Float64()*0.35, Box: headBox})
		} else {
			out = append(out, &detectv1.Detection{ClassName: "NoHardhat", Confidence: 0.55 + rand.Float64()*0.35, Box: headBox})
		}

		bodyBox := subRegion(person, 0.30, 1.0)
		if rand.Float32() < 0.7 {
			out = append(out, &detectv1.Detection{ClassName: "Vest", Confidence: 0.6 + rand.Float64()*0.35, Box: bodyBox})
		} else {
			out = append(out, &detectv1.Detection{ClassName: "NoVest", Confidence: 0.55 + rand.Float64()*0.35, Box: bodyBox})
		}
	}
	return out
}

// randomBox returns a box sized to roughly [minFrac, maxFrac] of the
// frame's height, positioned randomly within it.
func randomBox(w, h, minFrac, maxFrac float64) *detectv1.Box {
	frac := minFrac + rand.Float64()*(maxFrac-minFrac)
	bw := w * frac * 0.4
	bh := h * frac
	x1 := rand.Float64() * (w - bw)
	y1 := rand.Float64() * (h - bh)
	return &detectv1.Box{X1: x1, Y1: y1, X2: x1 + bw, Y2: y1 + bh}
}

// subRegion returns the vertical slice of person spanning fractions
// [lo,hi] of its height, for placing head/body PPE boxes within it.
func subRegion(person *detectv1.Box, lo, hi float64) *detectv1.Box {
	height := person.Y2 - person.Y1
	return &detectv1.Box{
		X1: person.X1,
		X2: person.X2,
		Y1: person.Y1 + height*lo,
		Y2: person.Y1 + height*hi,
	}
}

// detectServer implements detectv1.DetectServiceServer over Detector.
type detectServer struct {
	detectv1.UnimplementedDetectServiceServer
	detector *Detector
}

func (s *detectServer) Detect(ctx context.Context, req *detectv1.DetectRequest) (*detectv1.DetectResponse, error) {
	dets := s.detector.Detect(ctx, req.Frame, req.ConfidenceThreshold, req.NmsIou, int(req.MaxDetections))
	filtered := make([]*detectv1.Detection, 0, len(dets))
	for _, d := range dets {
		if req.ConfidenceThreshold > 0 && d.Confidence < req.ConfidenceThreshold {
			continue
		}
		filtered = append(filtered, d)
	}
	return &detectv1.DetectResponse{Detections: filtered}, nil
}

func (s *detectServer) Health(ctx context.Context, req *detectv1.HealthRequest) (*detectv1.HealthResponse, error) {
	status := "mock"
	if s.detector.ModelLoaded() {
		status = "model"
	}
	return &detectv1.HealthResponse{Ok: true, Status: status}, nil
}

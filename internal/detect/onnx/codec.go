package onnx

import (
	"bytes"
	"image"
	"image/jpeg"
	"sort"

	"github.com/sudharshan/ppe-monitor/internal/compliance"
	"github.com/sudharshan/ppe-monitor/internal/track"
	ort "github.com/yalue/onnxruntime_go"
)

// preprocessInto decodes frame, resizes (nearest-neighbor) to the
// model's square input size, and writes normalized CHW float32 data into
// dst's backing slice.
func preprocessInto(frame []byte, inputSize int, dst *ort.Tensor[float32]) error {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return err
	}
	resized := resizeNearest(img, inputSize, inputSize)
	out := dst.GetData()
	plane := inputSize * inputSize
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*inputSize + x
			out[idx] = float32(r>>8) / 255.0
			out[plane+idx] = float32(g>>8) / 255.0
			out[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return nil
}

func resizeNearest(img image.Image, w, h int) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	sx := float64(bounds.Dx()) / float64(w)
	sy := float64(bounds.Dy()) / float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + int(float64(x)*sx)
			srcY := bounds.Min.Y + int(float64(y)*sy)
			out.Set(x, y, img.At(srcX, srcY))
		}
	}
	return out
}

// decodeDetections interprets the model's flat output tensor as rows of
// (x1, y1, x2, y2, confidence, classIndex), filters by confThreshold,
// and applies greedy per-class NMS at nmsIoU, capped at maxDetections.
func decodeDetections(out *ort.Tensor[float32], labels []compliance.Class, confThreshold, nmsIoU float64, maxDetections int) []compliance.Detection {
	data := out.GetData()
	const stride = 6
	var candidates []compliance.Detection
	for i := 0; i+stride <= len(data); i += stride {
		conf := float64(data[i+4])
		if conf < confThreshold {
			continue
		}
		classIdx := int(data[i+5])
		if classIdx < 0 || classIdx >= len(labels) {
			continue
		}
		candidates = append(candidates, compliance.Detection{
			Class:      labels[classIdx],
			Confidence: conf,
			Box: track.Box{
				X1: float64(data[i]), Y1: float64(data[i+1]),
				X2: float64(data[i+2]), Y2: float64(data[i+3]),
			},
		})
	}
	return nms(candidates, nmsIoU, maxDetections)
}

func nms(dets []compliance.Detection, iouThreshold float64, max int) []compliance.Detection {
	sort.Slice(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	kept := make([]compliance.Detection, 0, len(dets))
	used := make([]bool, len(dets))
	for i := range dets {
		if used[i] {
			continue
		}
		kept = append(kept, dets[i])
		if len(kept) >= max {
			break
		}
		for j := i + 1; j < len(dets); j++ {
			if used[j] || dets[j].Class != dets[i].Class {
				continue
			}
			if track.IoU(dets[i].Box, dets[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}
	return kept
}

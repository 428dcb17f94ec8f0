// Package metrics exports the detection pipeline's Prometheus series.
// Per-camera labels are acceptable here: a deployment runs tens of
// cameras, not thousands, and per-camera latency is the first thing an
// operator looks at when a stream stutters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	detectorInferences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_detector_inferences_total",
			Help: "Detector invocations per camera",
		},
		[]string{"camera"},
	)

	detectorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ppe_detector_latency_ms",
			Help:    "Per-frame detector latency in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000},
		},
		[]string{"camera"},
	)

	framesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_frames_dropped_total",
			Help: "Frames skipped because the detector failed on them",
		},
		[]string{"camera"},
	)

	framesBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_frames_broadcast_total",
			Help: "Annotated frames fanned out to subscribers",
		},
		[]string{"camera"},
	)

	violations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_violations_total",
			Help: "Persisted violation events per camera and kind",
		},
		[]string{"camera", "kind"},
	)

	complianceSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_compliance_samples_total",
			Help: "Persisted periodic compliance samples per camera",
		},
		[]string{"camera"},
	)

	detectorUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ppe_detector_up",
			Help: "Whether the detector backend is serving (1=up, 0=down)",
		},
	)
)

func RecordInference(camera string) {
	detectorInferences.WithLabelValues(camera).Inc()
}

func RecordInferenceLatency(camera string, latencyMs float64) {
	detectorLatency.WithLabelValues(camera).Observe(latencyMs)
}

func RecordFrameDrop(camera string, count int) {
	framesDropped.WithLabelValues(camera).Add(float64(count))
}

func RecordFrameBroadcast(camera string) {
	framesBroadcast.WithLabelValues(camera).Inc()
}

func RecordViolation(camera, kind string) {
	violations.WithLabelValues(camera, kind).Inc()
}

func RecordComplianceSample(camera string) {
	complianceSamples.WithLabelValues(camera).Inc()
}

func SetDetectorUp(up bool) {
	if up {
		detectorUp.Set(1)
	} else {
		detectorUp.Set(0)
	}
}

// Package compliance attributes PPE detections to tracked workers and
// classifies each worker as compliant, violating, or unknown.
package compliance

import (
	"sort"

	"github.com/sudharshan/ppe-monitor/internal/track"
)

// Class is the fixed detector vocabulary. Internal names carry no
// whitespace.
type Class string

const (
	ClassPerson    Class = "Person"
	ClassHardhat   Class = "Hardhat"
	ClassNoHardhat Class = "NoHardhat"
	ClassVest      Class = "Vest"
	ClassNoVest    Class = "NoVest"
)

// Detection is one labelled box from the detector facade.
type Detection struct {
	Class      Class
	Confidence float64
	Box        track.Box
}

// ViolationKind enumerates the ways a worker can be out of compliance.
type ViolationKind string

const (
	MissingHardhat ViolationKind = "MissingHardhat"
	MissingVest    ViolationKind = "MissingVest"
	MissingBoth    ViolationKind = "MissingBoth"
)

// Status is the worker-level classification for one frame.
type Status string

const (
	Compliant Status = "Compliant"
	Violation Status = "Violation"
	Unknown   Status = "Unknown"
)

// DefaultPPEOverlap is the minimum PPE-to-person overlap fraction for
// attribution.
const DefaultPPEOverlap = 0.50

// Evaluation is the per-worker, per-frame classification result.
type Evaluation struct {
	WorkerID   int
	Box        track.Box
	Hardhat    bool
	NoHardhat  bool
	Vest       bool
	NoVest     bool
	Status     Status
	Kind       ViolationKind // only meaningful when Status == Violation
	Confidence map[Class]float64
}

// Aggregate summarises one frame's worker evaluations for subscribers,
// mirroring the `results` object the wire contract documents:
// detected_classes, confidence_scores, a representative violation_type, and
// partial_reason alongside the plain counts.
type Aggregate struct {
	TotalWorkers     int
	CompliantCount   int
	ViolationCount   int
	UnknownCount     int
	TotalViolations  int // sum of missing items across all workers
	Status           string
	DetectedClasses  []string
	ConfidenceScores map[string]float64
	ViolationType    string // representative kind, empty if no worker is violating
	PartialReason    string // set whenever any worker is Unknown this frame
}

// overlap returns area(intersection)/area(ppe), the fraction of the PPE
// box that falls inside the person box.
func overlap(person, ppe track.Box) float64 {
	ix1 := maxf(person.X1, ppe.X1)
	iy1 := maxf(person.Y1, ppe.Y1)
	ix2 := minf(person.X2, ppe.X2)
	iy2 := minf(person.Y2, ppe.Y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	ppeArea := (ppe.X2 - ppe.X1) * (ppe.Y2 - ppe.Y1)
	if ppeArea <= 0 {
		return 0
	}
	return inter / ppeArea
}

// Evaluate attributes non-person detections to tracked persons by
// greatest overlap above ppeOverlap, then classifies each worker.
func Evaluate(tracked []track.Tracked, detections []Detection, ppeOverlap float64) ([]Evaluation, Aggregate) {
	if ppeOverlap <= 0 {
		ppeOverlap = DefaultPPEOverlap
	}

	evals := make([]Evaluation, len(tracked))
	for i, tw := range tracked {
		evals[i] = Evaluation{
			WorkerID:   tw.WorkerID,
			Box:        tw.Box,
			Confidence: map[Class]float64{},
		}
	}

	for _, d := range detections {
		if d.Class == ClassPerson {
			continue
		}
		bestIdx := -1
		bestOverlap := 0.0
		for i, tw := range tracked {
			ov := overlap(tw.Box, d.Box)
			if ov >= ppeOverlap && ov > bestOverlap {
				bestOverlap = ov
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			continue
		}
		e := &evals[bestIdx]
		switch d.Class {
		case ClassHardhat:
			e.Hardhat = true
		case ClassNoHardhat:
			e.NoHardhat = true
		case ClassVest:
			e.Vest = true
		case ClassNoVest:
			e.NoVest = true
		}
		if d.Confidence > e.Confidence[d.Class] {
			e.Confidence[d.Class] = d.Confidence
		}
	}

	for i := range evals {
		classify(&evals[i])
	}
	return evals, Summarize(evals)
}

// Summarize recomputes the per-frame Aggregate from a slice of
// evaluations. Exported so a caller that mutates evaluations after
// Evaluate (e.g. an operator-supplied classification override) can
// recompute the subscriber-facing aggregate without re-running
// attribution.
func Summarize(evals []Evaluation) Aggregate {
	agg := Aggregate{TotalWorkers: len(evals)}

	classSeen := map[Class]bool{}
	bestConfidence := map[Class]float64{}
	var worstKind ViolationKind

	for i := range evals {
		e := &evals[i]
		switch e.Status {
		case Compliant:
			agg.CompliantCount++
		case Violation:
			agg.ViolationCount++
			agg.TotalViolations += missingCount(e.Kind)
			if severityRank(e.Kind) > severityRank(worstKind) {
				worstKind = e.Kind
			}
		case Unknown:
			agg.UnknownCount++
		}
		for cls, conf := range e.Confidence {
			classSeen[cls] = true
			if conf > bestConfidence[cls] {
				bestConfidence[cls] = conf
			}
		}
	}
	if agg.TotalWorkers > 0 {
		classSeen[ClassPerson] = true
	}

	agg.Status = summaryStatus(agg)
	agg.ViolationType = string(worstKind)
	if agg.UnknownCount > 0 {
		agg.PartialReason = "partial detection - person observed without hardhat or vest evidence"
	}
	agg.DetectedClasses = sortedClasses(classSeen)
	agg.ConfidenceScores = stringifyConfidence(bestConfidence)
	return agg
}

// severityRank orders violation kinds by alert severity so a
// multi-worker frame's representative violation_type is its worst one:
// MissingBoth and MissingHardhat are High, MissingVest is Medium.
func severityRank(k ViolationKind) int {
	switch k {
	case MissingBoth:
		return 2
	case MissingHardhat:
		return 2
	case MissingVest:
		return 1
	default:
		return 0
	}
}

func sortedClasses(seen map[Class]bool) []string {
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

func stringifyConfidence(m map[Class]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// classify applies the canonical classification precedence: both
// missing, then either missing, then a "both regions observed" check
// gated on head/body region visibility, then single-region fallback,
// then Unknown for true partial visibility. Unknown never produces a
// persisted record.
func classify(e *Evaluation) {
	switch {
	case e.NoHardhat && e.NoVest:
		e.Status, e.Kind = Violation, MissingBoth
	case e.NoHardhat:
		e.Status, e.Kind = Violation, MissingHardhat
	case e.NoVest:
		e.Status, e.Kind = Violation, MissingVest
	default:
		headObserved := e.Hardhat || e.NoHardhat
		bodyObserved := e.Vest || e.NoVest
		switch {
		case headObserved && bodyObserved:
			if e.Hardhat && e.Vest {
				e.Status = Compliant
			} else if !e.Hardhat {
				e.Status, e.Kind = Violation, MissingHardhat
			} else {
				e.Status, e.Kind = Violation, MissingVest
			}
		case headObserved:
			if e.Hardhat {
				e.Status = Compliant
			} else {
				e.Status, e.Kind = Violation, MissingHardhat
			}
		case bodyObserved:
			if e.Vest {
				e.Status = Compliant
			} else {
				e.Status, e.Kind = Violation, MissingVest
			}
		default:
			e.Status = Unknown
		}
	}
}

func missingCount(k ViolationKind) int {
	switch k {
	case MissingBoth:
		return 2
	case MissingHardhat, MissingVest:
		return 1
	default:
		return 0
	}
}

func summaryStatus(a Aggregate) string {
	if a.ViolationCount > 0 {
		return "violations_detected"
	}
	if a.TotalWorkers == 0 {
		return "no_workers"
	}
	return "compliant"
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

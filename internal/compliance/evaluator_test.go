package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sudharshan/ppe-monitor/internal/track"
)

func person(id int, box track.Box) track.Tracked {
	return track.Tracked{Person: track.Person{Box: box}, WorkerID: id}
}

func TestEvaluate_CompliantBothRegions(t *testing.T) {
	w := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	dets := []Detection{
		{Class: ClassHardhat, Confidence: 0.9, Box: track.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}},
		{Class: ClassVest, Confidence: 0.9, Box: track.Box{X1: 2, Y1: 2, X2: 8, Y2: 8}},
	}
	evals, agg := Evaluate([]track.Tracked{w}, dets, 0.50)
	assert.Equal(t, Compliant, evals[0].Status)
	assert.Equal(t, 1, agg.CompliantCount)
	assert.Equal(t, 0, agg.ViolationCount)
}

func TestEvaluate_MissingBothIsHighestSeverityKind(t *testing.T) {
	w := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	dets := []Detection{
		{Class: ClassNoHardhat, Confidence: 0.9, Box: track.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}},
		{Class: ClassNoVest, Confidence: 0.9, Box: track.Box{X1: 2, Y1: 2, X2: 8, Y2: 8}},
	}
	evals, agg := Evaluate([]track.Tracked{w}, dets, 0.50)
	assert.Equal(t, Violation, evals[0].Status)
	assert.Equal(t, MissingBoth, evals[0].Kind)
	assert.Equal(t, 2, agg.TotalViolations)
}

func TestEvaluate_OnlyHeadRegionObserved_ClassifiesByThatRegion(t *testing.T) {
	w := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	dets := []Detection{
		{Class: ClassHardhat, Confidence: 0.9, Box: track.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}},
	}
	evals, _ := Evaluate([]track.Tracked{w}, dets, 0.50)
	assert.Equal(t, Compliant, evals[0].Status)
}

// TestEvaluate_NeitherRegionObserved_IsUnknownNotViolation grounds the
// partial-visibility design note: a person with no head or body evidence
// must never be classified as a violation.
func TestEvaluate_NeitherRegionObserved_IsUnknownNotViolation(t *testing.T) {
	w := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	evals, agg := Evaluate([]track.Tracked{w}, nil, 0.50)
	assert.Equal(t, Unknown, evals[0].Status)
	assert.Equal(t, 1, agg.UnknownCount)
	assert.Equal(t, 0, agg.ViolationCount)
}

func TestEvaluate_PPEAttributedToHighestOverlapWorker(t *testing.T) {
	w1 := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	w2 := person(2, track.Box{X1: 20, Y1: 20, X2: 30, Y2: 30})
	dets := []Detection{
		{Class: ClassNoHardhat, Confidence: 0.9, Box: track.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}},
	}
	evals, _ := Evaluate([]track.Tracked{w1, w2}, dets, 0.50)
	assert.True(t, evals[0].NoHardhat)
	assert.False(t, evals[1].NoHardhat)
}

func TestEvaluate_BelowOverlapThreshold_NotAttributed(t *testing.T) {
	w := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	// PPE box mostly outside the person box: overlap < 0.50.
	dets := []Detection{
		{Class: ClassNoHardhat, Confidence: 0.9, Box: track.Box{X1: 8, Y1: 8, X2: 20, Y2: 20}},
	}
	evals, agg := Evaluate([]track.Tracked{w}, dets, 0.50)
	assert.Equal(t, Unknown, evals[0].Status)
	assert.Equal(t, 1, agg.UnknownCount)
}

func TestSummarize_PopulatesWireFrameFields(t *testing.T) {
	w1 := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	w2 := person(2, track.Box{X1: 20, Y1: 20, X2: 30, Y2: 30})
	dets := []Detection{
		{Class: ClassNoVest, Confidence: 0.6, Box: track.Box{X1: 1, Y1: 1, X2: 8, Y2: 8}},
		{Class: ClassHardhat, Confidence: 0.8, Box: track.Box{X1: 1, Y1: 1, X2: 8, Y2: 8}},
	}
	_, agg := Evaluate([]track.Tracked{w1, w2}, dets, 0.50)

	assert.Contains(t, agg.DetectedClasses, string(ClassPerson))
	assert.Contains(t, agg.DetectedClasses, string(ClassHardhat))
	assert.Contains(t, agg.DetectedClasses, string(ClassNoVest))
	assert.Equal(t, 0.8, agg.ConfidenceScores[string(ClassHardhat)])
	assert.Equal(t, string(MissingVest), agg.ViolationType)
	// w2 has no PPE evidence at all: Unknown, so a partial reason is set.
	assert.NotEmpty(t, agg.PartialReason)
}

func TestSummarize_WorstViolationWins(t *testing.T) {
	w1 := person(1, track.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	w2 := person(2, track.Box{X1: 20, Y1: 20, X2: 30, Y2: 30})
	dets := []Detection{
		{Class: ClassNoVest, Confidence: 0.6, Box: track.Box{X1: 1, Y1: 1, X2: 8, Y2: 8}},
		{Class: ClassNoHardhat, Confidence: 0.6, Box: track.Box{X1: 21, Y1: 21, X2: 28, Y2: 28}},
		{Class: ClassNoVest, Confidence: 0.6, Box: track.Box{X1: 21, Y1: 21, X2: 28, Y2: 28}},
	}
	_, agg := Evaluate([]track.Tracked{w1, w2}, dets, 0.50)
	// w1 is MissingVest (Medium), w2 is MissingBoth (High): the aggregate
	// must report the worse of the two, not whichever evaluated first.
	assert.Equal(t, string(MissingBoth), agg.ViolationType)
}

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modelwatch/modelwatch/internal/drift"
	"github.com/modelwatch/modelwatch/pkg/models"
)

func driftedReport() *drift.Report {
	return &drift.Report{DriftShare: 0.714, DatasetDrifted: true, Testable: 28, Drifted: 20}
}

func quietReport() *drift.Report {
	return &drift.Report{DriftShare: 0.1, Testable: 28, Drifted: 3}
}

func TestDriftSharePolicy(t *testing.T) {
	p := DriftSharePolicy{}

	v := p.Evaluate(Signals{Report: quietReport()})
	assert.False(t, v.Retrain)

	v = p.Evaluate(Signals{Report: driftedReport()})
	assert.True(t, v.Retrain)
	assert.NotEmpty(t, v.Reason)

	v = p.Evaluate(Signals{Report: driftedReport(), SyntheticOverride: true})
	assert.False(t, v.Retrain)
	assert.Contains(t, v.Reason, "synthetic")
}

func TestPerformanceAwarePolicy_AccuracyDropFires(t *testing.T) {
	p := PerformanceAwarePolicy{MinFeedback: 30, MaxDegradation: 0.05}

	v := p.Evaluate(Signals{
		Report:                quietReport(),
		FeedbackAccuracy:      0.70,
		FeedbackSamples:       50,
		ActiveOfflineAccuracy: 0.82,
	})
	assert.True(t, v.Retrain)
	assert.Contains(t, v.Reason, "accuracy")
}

func TestPerformanceAwarePolicy_DropFiresUnderSyntheticOverride(t *testing.T) {
	p := PerformanceAwarePolicy{MinFeedback: 30, MaxDegradation: 0.05}

	// the override suppresses the drift trigger, not the measured
	// degradation on real labeled feedback
	v := p.Evaluate(Signals{
		Report:                driftedReport(),
		FeedbackAccuracy:      0.70,
		FeedbackSamples:       50,
		ActiveOfflineAccuracy: 0.82,
		SyntheticOverride:     true,
	})
	assert.True(t, v.Retrain)
}

func TestPerformanceAwarePolicy_InsufficientFeedbackFallsThrough(t *testing.T) {
	p := PerformanceAwarePolicy{MinFeedback: 30, MaxDegradation: 0.05}

	v := p.Evaluate(Signals{
		Report:                quietReport(),
		FeedbackAccuracy:      0.10,
		FeedbackSamples:       5, // below MinFeedback
		ActiveOfflineAccuracy: 0.82,
	})
	assert.False(t, v.Retrain)

	v = p.Evaluate(Signals{
		Report:                driftedReport(),
		FeedbackAccuracy:      0.10,
		FeedbackSamples:       5,
		ActiveOfflineAccuracy: 0.82,
	})
	assert.True(t, v.Retrain) // drift share still decides
}

func TestPerformanceAwarePolicy_ToleratedDropDoesNotFire(t *testing.T) {
	p := PerformanceAwarePolicy{MinFeedback: 30, MaxDegradation: 0.05}

	v := p.Evaluate(Signals{
		Report:                quietReport(),
		FeedbackAccuracy:      0.79,
		FeedbackSamples:       50,
		ActiveOfflineAccuracy: 0.82,
	})
	assert.False(t, v.Retrain)
}

func TestFeedbackAccuracy(t *testing.T) {
	yes, no := "yes", "no"
	records := []models.PredictionRecord{
		{PredictedLabel: "yes", TrueLabel: &yes},
		{PredictedLabel: "yes", TrueLabel: &no},
		{PredictedLabel: "no", TrueLabel: &no},
		{PredictedLabel: "yes"}, // unlabeled, ignored
	}

	acc, n := feedbackAccuracy(records)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 2.0/3.0, acc, 1e-9)

	acc, n = feedbackAccuracy(nil)
	assert.Zero(t, n)
	assert.Zero(t, acc)
}

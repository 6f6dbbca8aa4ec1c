package lifecycle

import (
	"fmt"

	"github.com/modelwatch/modelwatch/internal/drift"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// Signals is everything a decision policy may consider. The aggregator
// exposes both the drift report and the production-accuracy signal; which
// one dominates is the policy's call.
type Signals struct {
	Report *drift.Report

	// FeedbackAccuracy is the observed accuracy over window records that
	// carry ground-truth labels; valid only when FeedbackSamples > 0.
	FeedbackAccuracy float64
	FeedbackSamples  int

	// ActiveOfflineAccuracy is the active model's recorded offline
	// accuracy, the reference for degradation checks.
	ActiveOfflineAccuracy float64

	// SyntheticOverride is set when the deployment is fed synthetic test
	// traffic that is expected to drift.
	SyntheticOverride bool
}

// Verdict is a policy's retrain decision with its reasoning.
type Verdict struct {
	Retrain bool
	Reason  string
}

// Policy folds the available signals into a retrain verdict.
type Policy interface {
	Name() string
	Evaluate(sig Signals) Verdict
}

// DriftSharePolicy is the default policy: retrain exactly when the dataset
// drift share exceeds the threshold. The synthetic-data override suppresses
// the trigger.
type DriftSharePolicy struct{}

func (DriftSharePolicy) Name() string { return "drift-share" }

func (DriftSharePolicy) Evaluate(sig Signals) Verdict {
	if !sig.Report.DatasetDrifted {
		return Verdict{Reason: fmt.Sprintf("drift share %.3f within threshold", sig.Report.DriftShare)}
	}
	if sig.SyntheticOverride {
		return Verdict{Reason: "dataset drift suppressed by synthetic-data override"}
	}
	return Verdict{
		Retrain: true,
		Reason: fmt.Sprintf("drift share %.3f: %d of %d testable features drifted",
			sig.Report.DriftShare, sig.Report.Drifted, sig.Report.Testable),
	}
}

// PerformanceAwarePolicy layers production accuracy degradation on top of
// the drift-share signal: it can raise a retrain when drift share is below
// threshold but labeled feedback shows the model degrading. The synthetic
// override suppresses the drift trigger only; a measured accuracy drop on
// real feedback still fires.
type PerformanceAwarePolicy struct {
	// MinFeedback is the minimum number of labeled records before the
	// accuracy signal is trusted.
	MinFeedback int
	// MaxDegradation is the tolerated drop from the active model's
	// offline accuracy.
	MaxDegradation float64
}

func (PerformanceAwarePolicy) Name() string { return "performance-aware" }

func (p PerformanceAwarePolicy) Evaluate(sig Signals) Verdict {
	if sig.FeedbackSamples >= p.MinFeedback && sig.ActiveOfflineAccuracy > 0 {
		drop := sig.ActiveOfflineAccuracy - sig.FeedbackAccuracy
		if drop > p.MaxDegradation {
			return Verdict{
				Retrain: true,
				Reason: fmt.Sprintf("production accuracy %.3f dropped %.3f below offline %.3f over %d labeled records",
					sig.FeedbackAccuracy, drop, sig.ActiveOfflineAccuracy, sig.FeedbackSamples),
			}
		}
	}
	return DriftSharePolicy{}.Evaluate(sig)
}

// feedbackAccuracy computes observed accuracy over records carrying ground
// truth. Returns the sample count alongside so callers can gate on volume.
func feedbackAccuracy(records []models.PredictionRecord) (float64, int) {
	var labeled, correct int
	for _, rec := range records {
		if rec.TrueLabel == nil {
			continue
		}
		labeled++
		if rec.PredictedLabel == *rec.TrueLabel {
			correct++
		}
	}
	if labeled == 0 {
		return 0, 0
	}
	return float64(correct) / float64(labeled), labeled
}

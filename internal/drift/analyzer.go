// Package drift implements the per-feature statistical drift analyzer and
// the dataset-level aggregation that decides whether the feature
// distribution has moved away from the training baseline.
package drift

import (
	"time"

	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// Analyzer compares a reference baseline against a window of production
// records. Numeric features use the two-sample Kolmogorov-Smirnov test,
// categorical features a chi-squared frequency test.
type Analyzer struct {
	alpha          float64
	shareThreshold float64
	minSamples     int
	logger         *zap.Logger
}

// NewAnalyzer creates an analyzer. Thresholds are validated at config load.
func NewAnalyzer(alpha, shareThreshold float64, minSamples int, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		alpha:          alpha,
		shareThreshold: shareThreshold,
		minSamples:     minSamples,
		logger:         logger,
	}
}

// Analyze produces one result per feature common to the baseline and the
// window, then aggregates them into a dataset report. Features with fewer
// than the minimum number of usable window values are marked indeterminate
// and excluded from the drift share denominator. Malformed or missing
// values reduce a feature's usable count rather than failing the cycle.
func (a *Analyzer) Analyze(baseline *models.Baseline, records []models.PredictionRecord) *Report {
	results := make([]FeatureResult, 0, len(baseline.Features))

	for name, fb := range baseline.Features {
		switch fb.Type {
		case models.FeatureCategorical:
			results = append(results, a.testCategorical(name, fb, records))
		default:
			results = append(results, a.testNumeric(name, fb, records))
		}
	}

	report := aggregate(results, a.shareThreshold, time.Now().UTC())

	metrics.DriftShare.Set(report.DriftShare)
	metrics.DriftedFeatures.Set(float64(report.Drifted))

	a.logger.Info("drift analysis complete",
		zap.Float64("drift_share", report.DriftShare),
		zap.Bool("dataset_drifted", report.DatasetDrifted),
		zap.Int("testable", report.Testable),
		zap.Int("drifted", report.Drifted))

	return report
}

func (a *Analyzer) testNumeric(name string, fb models.FeatureBaseline, records []models.PredictionRecord) FeatureResult {
	current := make([]float64, 0, len(records))
	dropped := 0
	for _, rec := range records {
		v, ok := rec.Features[name]
		if !ok || v.Kind != models.FeatureNumeric {
			dropped++
			continue
		}
		current = append(current, v.Num)
	}
	if dropped > 0 {
		a.logger.Debug("skipped malformed values",
			zap.String("feature", name), zap.Int("dropped", dropped))
	}

	if len(current) < a.minSamples || len(fb.Samples) == 0 {
		return FeatureResult{Name: name, Indeterminate: true}
	}

	// Constant columns on either side are reported as non-drifted rather
	// than producing a spurious flag.
	if !hasVariance(fb.Samples) || !hasVariance(current) {
		return FeatureResult{Name: name, Statistic: 0, PValue: 1}
	}

	stat, p := ksTest(fb.Samples, current)
	return FeatureResult{Name: name, Statistic: stat, PValue: p, Drifted: p < a.alpha}
}

func (a *Analyzer) testCategorical(name string, fb models.FeatureBaseline, records []models.PredictionRecord) FeatureResult {
	current := make(map[string]int)
	total := 0
	for _, rec := range records {
		v, ok := rec.Features[name]
		if !ok || v.Kind != models.FeatureCategorical {
			continue
		}
		current[v.Cat]++
		total++
	}

	if total < a.minSamples || len(fb.Categories) == 0 {
		return FeatureResult{Name: name, Indeterminate: true}
	}

	stat, p := chiSquareTest(fb.Categories, current)
	return FeatureResult{Name: name, Statistic: stat, PValue: p, Drifted: p < a.alpha}
}

package drift

import (
	"sort"
	"time"
)

// FeatureResult is the drift verdict for one feature.
type FeatureResult struct {
	Name          string  `json:"name"`
	Statistic     float64 `json:"test_statistic"`
	PValue        float64 `json:"p_value"`
	Drifted       bool    `json:"drifted"`
	Indeterminate bool    `json:"indeterminate"`
}

// Report is the dataset-level drift artifact produced every cycle,
// regardless of outcome. It is the contract consumed by downstream
// rendering and alerting.
type Report struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	DriftShare     float64         `json:"drift_share"`
	DatasetDrifted bool            `json:"dataset_drifted"`
	Testable       int             `json:"testable_features"`
	Drifted        int             `json:"drifted_features"`
	Results        []FeatureResult `json:"features"`
}

// Result returns the entry for the named feature, if present.
func (r *Report) Result(name string) (FeatureResult, bool) {
	for _, fr := range r.Results {
		if fr.Name == name {
			return fr, true
		}
	}
	return FeatureResult{}, false
}

// aggregate folds per-feature results into a report. drift_share counts
// only testable (non-indeterminate) features in its denominator; a window
// with nothing testable yields share 0 and no dataset drift.
func aggregate(results []FeatureResult, shareThreshold float64, now time.Time) *Report {
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	var testable, drifted int
	for _, fr := range results {
		if fr.Indeterminate {
			continue
		}
		testable++
		if fr.Drifted {
			drifted++
		}
	}

	var share float64
	if testable > 0 {
		share = float64(drifted) / float64(testable)
	}

	return &Report{
		GeneratedAt:    now,
		DriftShare:     share,
		DatasetDrifted: share > shareThreshold,
		Testable:       testable,
		Drifted:        drifted,
		Results:        results,
	}
}

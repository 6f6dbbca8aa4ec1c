package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeatureType declares how a feature is compared against its baseline.
type FeatureType string

const (
	FeatureNumeric     FeatureType = "numeric"
	FeatureCategorical FeatureType = "categorical"
)

// FeatureValue holds a single observed feature value. Exactly one of the
// Num/Cat members is meaningful depending on Kind.
type FeatureValue struct {
	Kind FeatureType
	Num  float64
	Cat  string
}

// Numeric builds a numeric feature value.
func Numeric(v float64) FeatureValue {
	return FeatureValue{Kind: FeatureNumeric, Num: v}
}

// Categorical builds a categorical feature value.
func Categorical(v string) FeatureValue {
	return FeatureValue{Kind: FeatureCategorical, Cat: v}
}

// MarshalJSON encodes numeric values as JSON numbers and categorical values
// as JSON strings, matching the prediction log record wire format.
func (v FeatureValue) MarshalJSON() ([]byte, error) {
	if v.Kind == FeatureCategorical {
		return json.Marshal(v.Cat)
	}
	return json.Marshal(v.Num)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (v *FeatureValue) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*v = Numeric(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Categorical(s)
		return nil
	}
	return fmt.Errorf("feature value must be a number or a string, got %s", string(data))
}

// PredictionRecord is one served prediction as logged by the serving layer.
// This is the sole contract between serving and the orchestrator's ingestion
// path; records are append-only and produced exactly once per request.
type PredictionRecord struct {
	RequestID      string                  `json:"request_id,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
	Features       map[string]FeatureValue `json:"features"`
	PredictedLabel string                  `json:"predicted_label"`
	Probability    float64                 `json:"predicted_probability"`
	ModelVersion   string                  `json:"model_version"`

	// TrueLabel is attached later via the feedback endpoint when ground
	// truth becomes available; nil until then.
	TrueLabel *string `json:"true_label,omitempty"`
}

// FeatureBaseline is the reference distribution for a single feature,
// captured at training time. Numeric features keep the raw reference sample;
// categorical features keep a frequency table. Immutable once captured.
type FeatureBaseline struct {
	Name       string         `json:"name"`
	Type       FeatureType    `json:"type"`
	Samples    []float64      `json:"samples,omitempty"`
	Categories map[string]int `json:"categories,omitempty"`
}

// Baseline is the full reference snapshot the current window is compared
// against. Replaced wholesale after an accepted retrain, never merged.
type Baseline struct {
	CapturedAt  time.Time                  `json:"captured_at"`
	SampleCount int                        `json:"sample_count"`
	Features    map[string]FeatureBaseline `json:"features"`
}

// ModelStatus is the lifecycle state of a registered model version.
type ModelStatus string

const (
	StatusCandidate ModelStatus = "candidate"
	StatusActive    ModelStatus = "active"
	StatusRetired   ModelStatus = "retired"
)

// Metrics are the offline evaluation metrics reported by the training job
// for a candidate, computed against a held-out split.
type Metrics struct {
	F1        float64 `json:"f1_score"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	ROCAUC    float64 `json:"roc_auc"`
}

// ModelVersion is the registry's metadata record for one model artifact.
type ModelVersion struct {
	ID            string      `json:"id"`
	Family        string      `json:"family,omitempty"`
	ArtifactPath  string      `json:"artifact_path"`
	ArtifactBytes int64       `json:"artifact_bytes,omitempty"`
	TrainSamples  int         `json:"train_samples"`
	Metrics       Metrics     `json:"metrics"`
	Status        ModelStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`

	// Seq is the registry-assigned submission order, used as the final
	// selection tie-break so re-runs pick the same candidate.
	Seq uint64 `json:"seq"`
}

// DecisionStatus tracks the outcome of one retrain decision.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionAccepted DecisionStatus = "accepted"
	DecisionRejected DecisionStatus = "rejected"
	DecisionFailed   DecisionStatus = "failed"
)

// RetrainDecision records one pass through the retrain lifecycle, from the
// drift report that raised it to its terminal status.
type RetrainDecision struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	ReportTime  time.Time      `json:"report_generated_at"`
	DriftShare  float64        `json:"drift_share"`
	Status      DecisionStatus `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	PromotedID  string         `json:"promoted_id,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
}

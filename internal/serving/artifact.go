package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/modelwatch/modelwatch/pkg/models"
)

// artifactSpec is the on-disk JSON artifact produced by the training job:
// a linear scorer with per-feature weights and per-category weights for
// categorical features.
type artifactSpec struct {
	Bias            float64                       `json:"bias"`
	Weights         map[string]float64            `json:"weights"`
	CategoryWeights map[string]map[string]float64 `json:"category_weights,omitempty"`
	Threshold       float64                       `json:"threshold,omitempty"`
	PositiveLabel   string                        `json:"positive_label"`
	NegativeLabel   string                        `json:"negative_label"`
}

// LinearModel scores a feature vector with a logistic over a linear
// combination of weights. Immutable after load.
type LinearModel struct {
	version   string
	spec      artifactSpec
	threshold float64
}

// Version returns the registry version id this model was loaded for.
func (m *LinearModel) Version() string { return m.version }

// Predict scores the feature vector. Missing features contribute zero.
func (m *LinearModel) Predict(features map[string]models.FeatureValue) (string, float64, error) {
	if m.spec.PositiveLabel == "" || m.spec.NegativeLabel == "" {
		return "", 0, fmt.Errorf("model %s has no output labels", m.version)
	}

	score := m.spec.Bias
	for name, w := range m.spec.Weights {
		if v, ok := features[name]; ok && v.Kind == models.FeatureNumeric {
			score += w * v.Num
		}
	}
	for name, cats := range m.spec.CategoryWeights {
		if v, ok := features[name]; ok && v.Kind == models.FeatureCategorical {
			score += cats[v.Cat]
		}
	}

	p := 1 / (1 + math.Exp(-score))
	if math.IsNaN(p) || p < 0 || p > 1 {
		return "", 0, fmt.Errorf("model %s produced malformed probability %v", m.version, p)
	}
	if p >= m.threshold {
		return m.spec.PositiveLabel, p, nil
	}
	return m.spec.NegativeLabel, p, nil
}

// FileArtifactLoader loads JSON artifacts from the local filesystem path
// recorded in the registry.
type FileArtifactLoader struct{}

// Load reads and decodes the artifact for the given version.
func (FileArtifactLoader) Load(ctx context.Context, mv models.ModelVersion) (Model, error) {
	data, err := os.ReadFile(mv.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", mv.ArtifactPath, err)
	}
	var spec artifactSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", mv.ArtifactPath, err)
	}
	threshold := spec.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	return &LinearModel{version: mv.ID, spec: spec, threshold: threshold}, nil
}

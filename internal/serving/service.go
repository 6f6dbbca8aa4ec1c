package serving

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/window"
	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// ErrNoActiveModel is returned while no model has been installed yet.
var ErrNoActiveModel = errors.New("no active model loaded")

// Prediction is the serving façade's response for one request.
type Prediction struct {
	RequestID    string    `json:"request_id"`
	Label        string    `json:"label"`
	Probability  float64   `json:"probability"`
	Confidence   string    `json:"confidence"`
	ModelVersion string    `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// Service serves predictions through the active model and logs each one to
// the prediction window exactly once.
type Service struct {
	pointer *Pointer
	window  *window.Window
	logger  *zap.Logger
}

// NewService wires the façade to the serving pointer and the window buffer.
func NewService(pointer *Pointer, w *window.Window, logger *zap.Logger) *Service {
	return &Service{pointer: pointer, window: w, logger: logger}
}

// ActiveVersion returns the version id of the model currently serving,
// or empty if none is installed.
func (s *Service) ActiveVersion() string {
	m := s.pointer.Load()
	if m == nil {
		return ""
	}
	return m.Version()
}

// Predict scores one feature vector with the active model and appends the
// served prediction to the window.
func (s *Service) Predict(features map[string]models.FeatureValue) (*Prediction, error) {
	m := s.pointer.Load()
	if m == nil {
		return nil, ErrNoActiveModel
	}

	label, p, err := m.Predict(features)
	if err != nil {
		return nil, err
	}

	pred := &Prediction{
		RequestID:    uuid.NewString(),
		Label:        label,
		Probability:  p,
		Confidence:   confidence(p),
		ModelVersion: m.Version(),
		Timestamp:    time.Now().UTC(),
	}

	s.window.Append(models.PredictionRecord{
		RequestID:      pred.RequestID,
		Timestamp:      pred.Timestamp,
		Features:       features,
		PredictedLabel: label,
		Probability:    p,
		ModelVersion:   m.Version(),
	})
	metrics.PredictionsServed.WithLabelValues(label).Inc()
	metrics.PredictionsIngested.WithLabelValues("serving").Inc()

	return pred, nil
}

// PredictBatch scores multiple vectors; per-row failures are reported in
// place without failing the batch.
func (s *Service) PredictBatch(rows []map[string]models.FeatureValue) ([]*Prediction, []error) {
	preds := make([]*Prediction, len(rows))
	errs := make([]error, len(rows))
	for i, row := range rows {
		preds[i], errs[i] = s.Predict(row)
	}
	return preds, errs
}

// confidence bands the probability by its distance from the decision
// boundary.
func confidence(p float64) string {
	switch {
	case p > 0.7 || p < 0.3:
		return "High"
	case p > 0.6 || p < 0.4:
		return "Medium"
	default:
		return "Low"
	}
}

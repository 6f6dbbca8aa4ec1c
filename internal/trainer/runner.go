// Package trainer defines the contract with the external training job
// runner and its HTTP client implementation. The orchestrator never trains;
// it requests training with a corpus pointer and a deadline and selects
// among the delivered candidates.
package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// Request asks the runner for a fresh training run over the labeled corpus
// the pointer names. The deadline is echoed so the runner can abandon work
// the orchestrator will no longer accept.
type Request struct {
	CorpusPointer string    `json:"corpus_pointer"`
	Deadline      time.Time `json:"deadline"`
}

// Candidate is one trained model delivered by the runner, with offline
// metrics computed against a held-out split.
type Candidate struct {
	ModelID          string         `json:"model_id"`
	Family           string         `json:"family,omitempty"`
	ArtifactLocation string         `json:"artifact_location"`
	ArtifactBytes    int64          `json:"artifact_bytes,omitempty"`
	TrainSamples     int            `json:"train_samples"`
	Metrics          models.Metrics `json:"metrics"`
}

// Response carries zero or more candidates plus the refreshed reference
// sample the baseline is rebuilt from after an accepted swap.
type Response struct {
	Candidates      []Candidate                      `json:"candidates"`
	ReferenceSample []map[string]models.FeatureValue `json:"reference_sample,omitempty"`
}

// Runner is the external training job interface.
type Runner interface {
	Train(ctx context.Context, req Request) (*Response, error)
}

// HTTPRunner invokes the training job over HTTP with a JSON body. The
// caller's context carries the retrain deadline; exceeding it cancels the
// attempt.
type HTTPRunner struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPRunner creates a runner client for the given job endpoint.
func NewHTTPRunner(url string, logger *zap.Logger) *HTTPRunner {
	return &HTTPRunner{
		url:    url,
		client: &http.Client{},
		logger: logger,
	}
}

// Train posts the request and decodes the candidate list. Transport
// failures, non-2xx responses, and context expiry all surface as errors;
// the caller maps them to a failed retrain decision.
func (r *HTTPRunner) Train(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode training request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build training request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	metrics.RetrainDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("training job call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("training job returned %d: %s", resp.StatusCode, string(msg))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode training response: %w", err)
	}

	r.logger.Info("training job returned",
		zap.Int("candidates", len(out.Candidates)),
		zap.Duration("elapsed", time.Since(start)))
	return &out, nil
}

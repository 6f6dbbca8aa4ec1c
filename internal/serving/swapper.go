package serving

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// LoadError indicates the candidate artifact could not be materialized.
// The prior pointer stays in place.
type LoadError struct {
	Version string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Version, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SmokeTestError indicates the loaded candidate failed the probe check.
type SmokeTestError struct {
	Version string
	Reason  string
}

func (e *SmokeTestError) Error() string {
	return fmt.Sprintf("model %s failed smoke test: %s", e.Version, e.Reason)
}

// HotSwapper replaces the serving pointer with a validated candidate.
// Swaps are serialized by the orchestrator's single-flight cycle; the
// pointer update itself is a single atomic replace, so concurrent readers
// observe either the old or the new model, never a mixed state.
type HotSwapper struct {
	pointer *Pointer
	loader  ArtifactLoader
	probes  []map[string]models.FeatureValue
	logger  *zap.Logger
}

// NewHotSwapper creates a swapper with the given probe set. The probes are
// a small fixed input set used to confirm a freshly loaded candidate
// produces well-formed outputs before it goes live.
func NewHotSwapper(pointer *Pointer, loader ArtifactLoader, probes []map[string]models.FeatureValue, logger *zap.Logger) *HotSwapper {
	return &HotSwapper{pointer: pointer, loader: loader, probes: probes, logger: logger}
}

// Prepare loads the candidate into memory and smoke-tests it without
// touching the serving pointer. On failure the prior active model keeps
// serving untouched.
func (h *HotSwapper) Prepare(ctx context.Context, mv models.ModelVersion) (Model, error) {
	m, err := h.loader.Load(ctx, mv)
	if err != nil {
		h.logger.Error("model load failed, keeping prior pointer",
			zap.String("id", mv.ID), zap.Error(err))
		return nil, &LoadError{Version: mv.ID, Err: err}
	}

	if err := h.smokeTest(m); err != nil {
		h.logger.Error("smoke test failed, keeping prior pointer",
			zap.String("id", mv.ID), zap.Error(err))
		return nil, err
	}
	return m, nil
}

// Commit atomically installs a prepared model as the active reference.
func (h *HotSwapper) Commit(m Model) {
	h.pointer.store(m)
	metrics.ModelSwaps.Inc()
	h.logger.Info("serving pointer swapped", zap.String("id", m.Version()))
}

// Swap runs Prepare and Commit as one operation, for callers that do not
// interleave registry bookkeeping between the two stages.
func (h *HotSwapper) Swap(ctx context.Context, mv models.ModelVersion) error {
	m, err := h.Prepare(ctx, mv)
	if err != nil {
		return err
	}
	h.Commit(m)
	return nil
}

func (h *HotSwapper) smokeTest(m Model) error {
	if len(h.probes) == 0 {
		return &SmokeTestError{Version: m.Version(), Reason: "no probe inputs configured"}
	}
	for i, probe := range h.probes {
		label, p, err := m.Predict(probe)
		if err != nil {
			return &SmokeTestError{Version: m.Version(), Reason: fmt.Sprintf("probe %d: %v", i, err)}
		}
		if label == "" || p < 0 || p > 1 {
			return &SmokeTestError{
				Version: m.Version(),
				Reason:  fmt.Sprintf("probe %d: malformed output label=%q p=%v", i, label, p),
			}
		}
	}
	return nil
}

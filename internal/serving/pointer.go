// Package serving owns the active-model pointer read by every prediction
// request, the hot-swap mechanism that replaces it, and the prediction
// façade the HTTP layer calls.
package serving

import (
	"context"
	"sync/atomic"

	"github.com/modelwatch/modelwatch/pkg/models"
)

// Model is an in-memory model ready to score feature vectors.
// Implementations must be immutable after load; the swap mechanism replaces
// whole references and never mutates a model in use.
type Model interface {
	Version() string
	Predict(features map[string]models.FeatureValue) (label string, probability float64, err error)
}

// ArtifactLoader materializes a model artifact into memory.
type ArtifactLoader interface {
	Load(ctx context.Context, version models.ModelVersion) (Model, error)
}

// Pointer is the serving pointer: a single atomically replaceable reference
// to the active model. Reads are lock-free and never block on a swap.
type Pointer struct {
	v atomic.Value // holds a Model via a wrapper for interface safety
}

type holder struct{ m Model }

// NewPointer creates an empty pointer. Until the first swap, Load returns
// nil and the serving path reports the model as unavailable.
func NewPointer() *Pointer {
	return &Pointer{}
}

// Load returns the active model, or nil if none has been installed.
func (p *Pointer) Load() Model {
	h, _ := p.v.Load().(holder)
	return h.m
}

// store replaces the active reference. Only the hot swapper calls this.
func (p *Pointer) store(m Model) {
	p.v.Store(holder{m: m})
}

// Package window implements the bounded prediction window buffer. Every
// served prediction is appended exactly once in arrival order; once capacity
// is exceeded the oldest record is evicted. Drift cycles read a snapshot and
// never block ingestion.
package window

import (
	"sync"

	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// Window is a fixed-capacity FIFO of prediction records backed by a ring
// buffer. Appends and snapshots are safe for concurrent use.
type Window struct {
	mu       sync.RWMutex
	records  []models.PredictionRecord
	capacity int
	head     int // index of the oldest record
	size     int
}

// New creates a window with the given capacity. Capacity must be >= 1;
// config validation enforces this before construction.
func New(capacity int) *Window {
	return &Window{
		records:  make([]models.PredictionRecord, capacity),
		capacity: capacity,
	}
}

// Append adds a record, evicting the oldest one if the window is full.
func (w *Window) Append(rec models.PredictionRecord) {
	w.mu.Lock()
	if w.size < w.capacity {
		w.records[(w.head+w.size)%w.capacity] = rec
		w.size++
	} else {
		w.records[w.head] = rec
		w.head = (w.head + 1) % w.capacity
	}
	size := w.size
	w.mu.Unlock()

	metrics.WindowSize.Set(float64(size))
}

// Len returns the current number of buffered records.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

// Capacity returns the fixed capacity of the window.
func (w *Window) Capacity() int {
	return w.capacity
}

// Snapshot returns the buffered records in insertion order. The returned
// slice is a copy; later appends and evictions do not affect it.
func (w *Window) Snapshot() []models.PredictionRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]models.PredictionRecord, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.records[(w.head+i)%w.capacity]
	}
	return out
}

// AttachLabel records ground truth for a previously served prediction,
// identified by its request id. Returns false if the record has already
// been evicted or was never seen.
func (w *Window) AttachLabel(requestID, label string) bool {
	if requestID == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i < w.size; i++ {
		idx := (w.head + i) % w.capacity
		if w.records[idx].RequestID == requestID {
			l := label
			w.records[idx].TrueLabel = &l
			return true
		}
	}
	return false
}

// Package baseline holds the reference feature distribution the live
// window is compared against. The snapshot is immutable; an accepted
// retrain replaces it wholesale under the orchestrator's single-writer
// discipline. Snapshots persist in BadgerDB so restarts resume with the
// same reference.
package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/pkg/models"
)

const snapshotKey = "baseline:current"

// Store provides lock-free reads of the current baseline snapshot and
// durable wholesale replacement.
type Store struct {
	db        *badger.DB
	current   atomic.Value // *models.Baseline
	staleness time.Duration
	logger    *zap.Logger
}

// NewStore opens the store at path and loads the persisted snapshot, if
// any. A missing snapshot is not an error; drift cycles are skipped until
// a baseline is captured.
func NewStore(path string, staleness time.Duration, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open baseline store: %w", err)
	}

	s := &Store{db: db, staleness: staleness, logger: logger}

	var raw []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			raw = append([]byte(nil), v...)
			return nil
		})
	})
	switch {
	case err == badger.ErrKeyNotFound:
		logger.Info("no baseline snapshot found, starting empty")
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to load baseline snapshot: %w", err)
	default:
		var b models.Baseline
		if err := json.Unmarshal(raw, &b); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to decode baseline snapshot: %w", err)
		}
		s.current.Store(&b)
		logger.Info("baseline snapshot loaded",
			zap.Time("captured_at", b.CapturedAt),
			zap.Int("features", len(b.Features)),
			zap.Int("samples", b.SampleCount))
	}

	return s, nil
}

// Current returns the active baseline, or nil if none has been captured.
// The returned snapshot must be treated as read-only.
func (s *Store) Current() *models.Baseline {
	b, _ := s.current.Load().(*models.Baseline)
	return b
}

// Replace persists the new snapshot and swaps the in-memory reference.
// Only the orchestrator calls this, after an accepted retrain.
func (s *Store) Replace(ctx context.Context, b *models.Baseline) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist baseline: %w", err)
	}
	s.current.Store(b)
	s.logger.Info("baseline replaced",
		zap.Time("captured_at", b.CapturedAt),
		zap.Int("features", len(b.Features)),
		zap.Int("samples", b.SampleCount))
	return nil
}

// Stale reports whether the current baseline is older than the configured
// staleness window. Advisory only; a stale baseline never blocks a cycle.
func (s *Store) Stale(now time.Time) bool {
	b := s.Current()
	if b == nil || s.staleness <= 0 {
		return false
	}
	return now.Sub(b.CapturedAt) > s.staleness
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FromRows builds a baseline snapshot from reference sample rows, inferring
// each feature's type from the first value seen for it.
func FromRows(rows []map[string]models.FeatureValue, capturedAt time.Time) *models.Baseline {
	features := make(map[string]models.FeatureBaseline)
	for _, row := range rows {
		for name, v := range row {
			fb, ok := features[name]
			if !ok {
				fb = models.FeatureBaseline{Name: name, Type: v.Kind}
				if v.Kind == models.FeatureCategorical {
					fb.Categories = make(map[string]int)
				}
				features[name] = fb
			}
			if fb.Type != v.Kind {
				continue
			}
			if v.Kind == models.FeatureCategorical {
				fb.Categories[v.Cat]++
			} else {
				fb.Samples = append(fb.Samples, v.Num)
			}
			features[name] = fb
		}
	}
	return &models.Baseline{
		CapturedAt:  capturedAt,
		SampleCount: len(rows),
		Features:    features,
	}
}

// Package registry is the versioned, append-only store of model artifacts
// and their metadata. Exactly one version is active at any time; retired
// versions are kept for audit and rollback, never mutated or reused.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/pkg/models"
)

const versionPrefix = "model:"

// Registry holds model version metadata, persisted per record in BadgerDB
// and indexed in memory for reads.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]models.ModelVersion
	activeID string
	nextSeq  uint64

	db     *badger.DB
	logger *zap.Logger
}

// NewRegistry opens the metadata store at path and rebuilds the in-memory
// index from persisted records.
func NewRegistry(path string, logger *zap.Logger) (*Registry, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry store: %w", err)
	}

	r := &Registry{
		versions: make(map[string]models.ModelVersion),
		db:       db,
		logger:   logger,
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(versionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var mv models.ModelVersion
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &mv)
			})
			if err != nil {
				return fmt.Errorf("failed to decode version record: %w", err)
			}
			r.versions[mv.ID] = mv
			if mv.Status == models.StatusActive {
				r.activeID = mv.ID
			}
			if mv.Seq >= r.nextSeq {
				r.nextSeq = mv.Seq + 1
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("model registry loaded",
		zap.Int("versions", len(r.versions)),
		zap.String("active", r.activeID))
	return r, nil
}

// Register records a new version. Candidates keep their reported metadata;
// the registry assigns the submission sequence and creation time, and
// generates an id when the training job did not supply one.
func (r *Registry) Register(ctx context.Context, mv models.ModelVersion) (models.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mv.ID == "" {
		mv.ID = uuid.NewString()
	}
	if _, exists := r.versions[mv.ID]; exists {
		return models.ModelVersion{}, fmt.Errorf("model version %s already registered", mv.ID)
	}
	if mv.Status == "" {
		mv.Status = models.StatusCandidate
	}
	if mv.CreatedAt.IsZero() {
		mv.CreatedAt = time.Now().UTC()
	}
	mv.Seq = r.nextSeq
	r.nextSeq++

	if err := r.persist(mv); err != nil {
		return models.ModelVersion{}, err
	}
	r.versions[mv.ID] = mv

	r.logger.Info("model version registered",
		zap.String("id", mv.ID),
		zap.String("family", mv.Family),
		zap.Float64("f1", mv.Metrics.F1),
		zap.String("status", string(mv.Status)))
	return mv, nil
}

// Active returns the currently active version, if any.
func (r *Registry) Active() (models.ModelVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeID == "" {
		return models.ModelVersion{}, false
	}
	mv, ok := r.versions[r.activeID]
	return mv, ok
}

// Get returns the version with the given id.
func (r *Registry) Get(id string) (models.ModelVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mv, ok := r.versions[id]
	return mv, ok
}

// List returns all versions in submission order, for audit and manual
// rollback tooling.
func (r *Registry) List() []models.ModelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ModelVersion, 0, len(r.versions))
	for _, mv := range r.versions {
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Promote makes the given version active and demotes the prior active
// version to retired. Both records are written in one transaction so the
// single-active invariant holds across restarts.
func (r *Registry) Promote(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := r.versions[id]
	if !ok {
		return fmt.Errorf("model version %s not found", id)
	}
	if next.Status == models.StatusActive {
		return nil
	}

	var prev models.ModelVersion
	hadPrev := false
	if r.activeID != "" && r.activeID != id {
		prev = r.versions[r.activeID]
		prev.Status = models.StatusRetired
		hadPrev = true
	}
	next.Status = models.StatusActive

	err := r.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(versionPrefix+next.ID), data); err != nil {
			return err
		}
		if hadPrev {
			data, err := json.Marshal(prev)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(versionPrefix+prev.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist promotion: %w", err)
	}

	r.versions[next.ID] = next
	if hadPrev {
		r.versions[prev.ID] = prev
	}
	r.activeID = next.ID

	r.logger.Info("model version promoted",
		zap.String("id", next.ID),
		zap.String("retired", prev.ID))
	return nil
}

// Select applies the deterministic candidate selection rule: highest F1,
// ties broken by higher ROC-AUC, then smaller artifact, then earliest
// submission. Returns false for an empty candidate list.
func (r *Registry) Select(candidates []models.ModelVersion) (models.ModelVersion, bool) {
	if len(candidates) == 0 {
		return models.ModelVersion{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best, true
}

func better(a, b models.ModelVersion) bool {
	if a.Metrics.F1 != b.Metrics.F1 {
		return a.Metrics.F1 > b.Metrics.F1
	}
	if a.Metrics.ROCAUC != b.Metrics.ROCAUC {
		return a.Metrics.ROCAUC > b.Metrics.ROCAUC
	}
	if a.ArtifactBytes > 0 && b.ArtifactBytes > 0 && a.ArtifactBytes != b.ArtifactBytes {
		return a.ArtifactBytes < b.ArtifactBytes
	}
	return a.Seq < b.Seq
}

func (r *Registry) persist(mv models.ModelVersion) error {
	data, err := json.Marshal(mv)
	if err != nil {
		return fmt.Errorf("failed to encode version record: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(versionPrefix+mv.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist version record: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

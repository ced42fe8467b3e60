package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
)

// VectorStore implements storage.VectorStore on BadgerDB.
// Search is an exact scan over the collection's points.
type VectorStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a VectorStore on an open backend.
func NewVectorStore(backend *Backend) (*VectorStore, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &VectorStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-vectors"),
	}, nil
}

// EnsureCollection implements storage.VectorStore.
func (s *VectorStore) EnsureCollection(ctx context.Context, cfg core.CollectionConfig) error {
	if err := core.ValidateCollectionConfig(cfg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.backend.update(func(tx *badger.Txn) error {
		existing, err := loadCollection(tx, cfg.Name)
		if err != nil && !errors.Is(err, storage.ErrCollectionNotFound) {
			return err
		}
		if existing != nil {
			if existing.Dimension != cfg.Dimension {
				return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
					core.ErrConfigMismatch, cfg.Name, existing.Dimension, cfg.Dimension)
			}
			if existing.Metric != cfg.Metric {
				s.logger.Warn("collection metric differs from requested",
					"collection", cfg.Name, "existing", existing.Metric, "requested", cfg.Metric)
			}
			return nil
		}
		s.logger.Info("creating collection", "collection", cfg.Name, "dimension", cfg.Dimension, "metric", cfg.Metric)
		return tx.Set(makeCollectionKey(cfg.Name), storage.MarshalCollectionConfig(&cfg))
	})
	if errors.Is(err, core.ErrConfigMismatch) {
		return err
	}
	return storageErr(err)
}

// Upsert implements storage.VectorStore.
func (s *VectorStore) Upsert(ctx context.Context, collection string, ids []core.PointID, vectors [][]float32, payloads []core.Payload) error {
	if err := core.ValidateUpsert(ids, vectors, payloads, 0); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var cfg *core.CollectionConfig
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		cfg, err = loadCollection(tx, collection)
		return err
	}, false)
	if err != nil {
		return storageErr(err)
	}
	if err := core.ValidateUpsert(ids, vectors, payloads, cfg.Dimension); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	// A write batch splits large upserts across transactions as needed.
	wb := s.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for i, id := range ids {
		point := &core.Point{ID: id, Vector: vectors[i], Payload: payloads[i]}
		if err := wb.Set(makePointKey(collection, id), storage.MarshalPoint(point)); err != nil {
			return storageErr(err)
		}
	}
	if err := wb.Flush(); err != nil {
		return storageErr(err)
	}

	s.logger.Debug("upserted points", "collection", collection, "count", len(ids))
	return nil
}

// Search implements storage.VectorStore.
// Euclid collections score by negated distance so higher is always closer.
func (s *VectorStore) Search(ctx context.Context, collection string, vector []float32, topK int, filter string) ([]core.ScoredPoint, error) {
	if topK <= 0 {
		return []core.ScoredPoint{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filtered := filter != "" && filter != core.MatchAll
	var results []core.ScoredPoint

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		cfg, err := loadCollection(tx, collection)
		if err != nil {
			return err
		}
		if len(vector) != cfg.Dimension {
			return fmt.Errorf("%w: query vector has length %d, collection expects %d",
				core.ErrDimensionMismatch, len(vector), cfg.Dimension)
		}
		score := scorer(cfg.Metric)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePointPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var point *core.Point
			err := iter.Item().Value(func(val []byte) error {
				var err error
				point, err = storage.UnmarshalPoint(val)
				return err
			})
			if err != nil {
				return err
			}
			if filtered && point.Payload.Source != filter {
				continue
			}
			results = append(results, core.ScoredPoint{
				ID:      point.ID,
				Score:   score(vector, point.Vector),
				Payload: point.Payload,
			})
		}
		return nil
	}, false)
	if err != nil {
		if errors.Is(err, core.ErrInvalidArgument) {
			return nil, err
		}
		return nil, storageErr(err)
	}

	// Iteration is in key order, so a stable sort gives deterministic ties.
	slices.SortStableFunc(results, func(a, b core.ScoredPoint) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []core.ScoredPoint{}
	}
	return results, nil
}

// Count returns the number of points stored in a collection.
func (s *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := loadCollection(tx, collection); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePointPrefix(collection)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, storageErr(err)
}

// GetPoint retrieves a single point.
// Returns storage.ErrNotFound if the point doesn't exist.
func (s *VectorStore) GetPoint(ctx context.Context, collection string, id core.PointID) (*core.Point, error) {
	var point *core.Point
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePointKey(collection, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			point, err = storage.UnmarshalPoint(val)
			return err
		})
	}, false)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return point, storageErr(err)
}

// Close is a no-op; the backend is owned by the caller.
func (s *VectorStore) Close() error {
	return nil
}

func loadCollection(tx *badger.Txn, name string) (*core.CollectionConfig, error) {
	item, err := tx.Get(makeCollectionKey(name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
		}
		return nil, err
	}
	var cfg *core.CollectionConfig
	err = item.Value(func(val []byte) error {
		var err error
		cfg, err = storage.UnmarshalCollectionConfig(val)
		return err
	})
	return cfg, err
}

func scorer(metric core.Metric) func(a, b []float32) float32 {
	switch metric {
	case core.MetricDot:
		return dotProduct
	case core.MetricEuclid:
		return func(a, b []float32) float32 {
			return -euclidDistance(a, b)
		}
	default:
		return cosineSimilarity
	}
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// cosineSimilarity returns 0 when either vector has zero norm.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func euclidDistance(a, b []float32) float32 {
	var sum float64
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

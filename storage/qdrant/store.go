// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadText   = "text"
	payloadSource = "source"

	defaultUpsertBatchSize = 256
)

// client is the subset of *qdrant.Client used by VectorStore.
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

var _ client = (*qdrant.Client)(nil)

// VectorStore implements storage.VectorStore on a Qdrant server.
type VectorStore struct {
	client    client
	batchSize int
	logger    *slog.Logger

	mu          sync.RWMutex
	collections map[string]core.CollectionConfig
}

var _ storage.VectorStore = (*VectorStore)(nil)

// Option configures a VectorStore.
type Option func(*VectorStore) error

// WithUpsertBatchSize sets the number of points sent per upsert request.
// Default is 256.
func WithUpsertBatchSize(size int) Option {
	return func(s *VectorStore) error {
		if size < 1 {
			return fmt.Errorf("%w: upsert batch size must be >= 1", core.ErrInvalidArgument)
		}
		s.batchSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *VectorStore) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "qdrant-vectors")
		return nil
	}
}

// New connects to Qdrant over gRPC.
func New(cfg Config, opts ...Option) (*VectorStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: cfg.SkipCompatibilityCheck,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %w", core.ErrStorage, err)
	}
	store, err := newVectorStore(c, opts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return store, nil
}

func newVectorStore(c client, opts ...Option) (*VectorStore, error) {
	s := &VectorStore{
		client:      c,
		batchSize:   defaultUpsertBatchSize,
		logger:      slog.Default().With("component", "qdrant-vectors"),
		collections: make(map[string]core.CollectionConfig),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EnsureCollection implements storage.VectorStore.
// New collections get a keyword index on the source payload field.
func (s *VectorStore) EnsureCollection(ctx context.Context, cfg core.CollectionConfig) error {
	if err := core.ValidateCollectionConfig(cfg); err != nil {
		return err
	}

	existing, err := s.describe(ctx, cfg.Name)
	switch {
	case err == nil:
		if existing.Dimension != cfg.Dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				core.ErrConfigMismatch, cfg.Name, existing.Dimension, cfg.Dimension)
		}
		return nil
	case !errors.Is(err, storage.ErrCollectionNotFound):
		return err
	}

	s.logger.Info("creating collection", "collection", cfg.Name, "dimension", cfg.Dimension, "metric", cfg.Metric)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: cfg.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(cfg.Dimension),
			Distance: toDistance(cfg.Metric),
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %q: %w", core.ErrStorage, cfg.Name, err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: cfg.Name,
		Wait:           qdrant.PtrOf(true),
		FieldName:      payloadSource,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
	})
	if err != nil {
		// Filtering still works without the index, only slower.
		s.logger.Warn("failed to create source index", "collection", cfg.Name, "err", err)
	}

	s.remember(cfg)
	return nil
}

// Upsert implements storage.VectorStore.
func (s *VectorStore) Upsert(ctx context.Context, collection string, ids []core.PointID, vectors [][]float32, payloads []core.Payload) error {
	if err := core.ValidateUpsert(ids, vectors, payloads, 0); err != nil {
		return err
	}
	cfg, err := s.describe(ctx, collection)
	if err != nil {
		return err
	}
	if err := core.ValidateUpsert(ids, vectors, payloads, cfg.Dimension); err != nil {
		return err
	}

	for start := 0; start < len(ids); start += s.batchSize {
		end := min(start+s.batchSize, len(ids))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(ids[i])),
				Vectors: qdrant.NewVectorsDense(vectors[i]),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadText:   payloads[i].Text,
					payloadSource: payloads[i].Source,
				}),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("%w: upserting into %q: %w", core.ErrStorage, collection, err)
		}
	}

	s.logger.Debug("upserted points", "collection", collection, "count", len(ids))
	return nil
}

// Search implements storage.VectorStore.
// Euclid scores are negated distances so higher is always closer.
func (s *VectorStore) Search(ctx context.Context, collection string, vector []float32, topK int, filter string) ([]core.ScoredPoint, error) {
	if topK <= 0 {
		return []core.ScoredPoint{}, nil
	}
	cfg, err := s.describe(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != cfg.Dimension {
		return nil, fmt.Errorf("%w: query vector has length %d, collection expects %d",
			core.ErrDimensionMismatch, len(vector), cfg.Dimension)
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         sourceFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying %q: %w", core.ErrStorage, collection, err)
	}

	results := make([]core.ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		score := hit.GetScore()
		if cfg.Metric == core.MetricEuclid {
			score = -score
		}
		payload := hit.GetPayload()
		results = append(results, core.ScoredPoint{
			ID:    core.PointID(hit.GetId().GetNum()),
			Score: score,
			Payload: core.Payload{
				Text:   payload[payloadText].GetStringValue(),
				Source: payload[payloadSource].GetStringValue(),
			},
		})
	}
	return results, nil
}

// Close closes the gRPC connection.
func (s *VectorStore) Close() error {
	return s.client.Close()
}

// describe returns the configuration of a collection, asking the server
// the first time a collection is seen.
func (s *VectorStore) describe(ctx context.Context, name string) (core.CollectionConfig, error) {
	s.mu.RLock()
	cfg, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return core.CollectionConfig{}, fmt.Errorf("%w: checking collection %q: %w", core.ErrStorage, name, err)
	}
	if !exists {
		return core.CollectionConfig{}, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}

	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return core.CollectionConfig{}, fmt.Errorf("%w: describing collection %q: %w", core.ErrStorage, name, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return core.CollectionConfig{}, fmt.Errorf("%w: collection %q uses named vectors", core.ErrConfigMismatch, name)
	}

	cfg = core.CollectionConfig{
		Name:      name,
		Dimension: int(params.GetSize()),
		Metric:    fromDistance(params.GetDistance()),
	}
	s.remember(cfg)
	return cfg, nil
}

func (s *VectorStore) remember(cfg core.CollectionConfig) {
	s.mu.Lock()
	s.collections[cfg.Name] = cfg
	s.mu.Unlock()
}

// sourceFilter builds the payload filter for a source, or nil for no filtering.
func sourceFilter(source string) *qdrant.Filter {
	if source == "" || source == core.MatchAll {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadSource, source),
		},
	}
}

func toDistance(m core.Metric) qdrant.Distance {
	switch m {
	case core.MetricDot:
		return qdrant.Distance_Dot
	case core.MetricEuclid:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func fromDistance(d qdrant.Distance) core.Metric {
	switch d {
	case qdrant.Distance_Dot:
		return core.MetricDot
	case qdrant.Distance_Euclid:
		return core.MetricEuclid
	default:
		return core.MetricCosine
	}
}

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
	"slices"
	"sync"
	"testing"

	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory stand-in for the Qdrant gRPC client.
// It scores by dot product and supports keyword Must filters.
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]*qdrant.VectorParams
	points      map[string]map[uint64]*qdrant.PointStruct
	indexes     []string
	upserts     int
	queries     []*qdrant.QueryPoints
	queryErr    error
	closed      bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		collections: map[string]*qdrant.VectorParams{},
		points:      map[string]map[uint64]*qdrant.PointStruct{},
	}
}

func (f *fakeClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeClient) GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	params, ok := f.collections[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(params),
			},
		},
	}, nil
}

func (f *fakeClient) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[req.CollectionName] = req.GetVectorsConfig().GetParams()
	f.points[req.CollectionName] = map[uint64]*qdrant.PointStruct{}
	return nil
}

func (f *fakeClient) CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes = append(f.indexes, req.CollectionName+"."+req.FieldName)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, p := range req.Points {
		f.points[req.CollectionName][p.GetId().GetNum()] = p
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	query := req.GetQuery().GetNearest().GetDense().GetData()
	var hits []*qdrant.ScoredPoint
	for _, p := range f.points[req.CollectionName] {
		if !matches(req.GetFilter(), p) {
			continue
		}
		vec := p.GetVectors().GetVector().GetDense().GetData()
		var score float32
		for i := range min(len(vec), len(query)) {
			score += vec[i] * query[i]
		}
		hits = append(hits, &qdrant.ScoredPoint{Id: p.Id, Payload: p.Payload, Score: score})
	}
	slices.SortFunc(hits, func(a, b *qdrant.ScoredPoint) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if limit := int(req.GetLimit()); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func matches(filter *qdrant.Filter, p *qdrant.PointStruct) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		if p.Payload[field.GetKey()].GetStringValue() != field.GetMatch().GetKeyword() {
			return false
		}
	}
	return true
}

func newTestStore(t *testing.T, opts ...Option) (*VectorStore, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	store, err := newVectorStore(fc, opts...)
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(context.Background(), core.CollectionConfig{
		Name: "docs", Dimension: 2, Metric: core.MetricCosine,
	}))
	return store, fc
}

func TestEnsureCollection(t *testing.T) {
	ctx := context.Background()
	store, fc := newTestStore(t)

	assert.Equal(t, []string{"docs.source"}, fc.indexes)
	assert.Equal(t, uint64(2), fc.collections["docs"].GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, fc.collections["docs"].GetDistance())

	require.NoError(t, store.EnsureCollection(ctx, core.CollectionConfig{Name: "docs", Dimension: 2, Metric: core.MetricCosine}))
	assert.Len(t, fc.indexes, 1, "existing collection must not be recreated")

	err := store.EnsureCollection(ctx, core.CollectionConfig{Name: "docs", Dimension: 3, Metric: core.MetricCosine})
	assert.ErrorIs(t, err, core.ErrConfigMismatch)
}

func TestEnsureCollection_DiscoversExisting(t *testing.T) {
	fc := newFakeClient()
	fc.collections["docs"] = &qdrant.VectorParams{Size: 4, Distance: qdrant.Distance_Dot}

	store, err := newVectorStore(fc)
	require.NoError(t, err)

	err = store.EnsureCollection(context.Background(), core.CollectionConfig{Name: "docs", Dimension: 8, Metric: core.MetricCosine})
	assert.ErrorIs(t, err, core.ErrConfigMismatch)
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store, fc := newTestStore(t, WithUpsertBatchSize(2))

	ids := []core.PointID{core.PointIDFor("a.pdf", 0), core.PointIDFor("a.pdf", 1), core.PointIDFor("b.pdf", 0)}
	vectors := [][]float32{{1, 0}, {0.5, 0.5}, {0.9, 0.1}}
	payloads := []core.Payload{
		{Text: "a0", Source: "a.pdf"},
		{Text: "a1", Source: "a.pdf"},
		{Text: "b0", Source: "b.pdf"},
	}
	require.NoError(t, store.Upsert(ctx, "docs", ids, vectors, payloads))
	assert.Equal(t, 2, fc.upserts, "three points in batches of two")

	results, err := store.Search(ctx, "docs", []float32{1, 0}, 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0].ID)
	assert.Equal(t, core.Payload{Text: "a0", Source: "a.pdf"}, results[0].Payload)
	assert.Equal(t, "b0", results[1].Payload.Text)
	assert.Nil(t, fc.queries[0].GetFilter())
}

func TestSearch_Filter(t *testing.T) {
	ctx := context.Background()
	store, fc := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, "docs",
		[]core.PointID{1, 2},
		[][]float32{{1, 0}, {1, 0}},
		[]core.Payload{{Text: "a", Source: "a.pdf"}, {Text: "b", Source: "b.pdf"}}))

	results, err := store.Search(ctx, "docs", []float32{1, 0}, 5, "b.pdf")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.pdf", results[0].Payload.Source)

	_, err = store.Search(ctx, "docs", []float32{1, 0}, 5, core.MatchAll)
	require.NoError(t, err)
	assert.Nil(t, fc.queries[len(fc.queries)-1].GetFilter())
}

func TestSearch_ZeroTopKSkipsServer(t *testing.T) {
	store, fc := newTestStore(t)
	results, err := store.Search(context.Background(), "docs", []float32{1, 0}, 0, "")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, fc.queries)
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	store, fc := newTestStore(t)

	err := store.Upsert(ctx, "docs", []core.PointID{1}, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	err = store.Upsert(ctx, "docs", []core.PointID{1}, [][]float32{{1, 2, 3}}, []core.Payload{{}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	err = store.Upsert(ctx, "missing", []core.PointID{1}, [][]float32{{1, 2}}, []core.Payload{{}})
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	fc.queryErr = errors.New("unavailable")
	_, err = store.Search(ctx, "docs", []float32{1, 0}, 3, "")
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestSourceFilter(t *testing.T) {
	assert.Nil(t, sourceFilter(""))
	assert.Nil(t, sourceFilter(core.MatchAll))

	f := sourceFilter("report.pdf")
	require.Len(t, f.GetMust(), 1)
	assert.Equal(t, "source", f.GetMust()[0].GetField().GetKey())
	assert.Equal(t, "report.pdf", f.GetMust()[0].GetField().GetMatch().GetKeyword())
}

func TestMetricMapping(t *testing.T) {
	for _, m := range []core.Metric{core.MetricCosine, core.MetricDot, core.MetricEuclid} {
		assert.Equal(t, m, fromDistance(toDistance(m)))
	}
}

func TestClose(t *testing.T) {
	store, fc := newTestStore(t)
	require.NoError(t, store.Close())
	assert.True(t, fc.closed)
}

func TestWithUpsertBatchSize_Invalid(t *testing.T) {
	_, err := newVectorStore(newFakeClient(), WithUpsertBatchSize(0))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

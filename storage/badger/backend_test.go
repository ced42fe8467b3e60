package badger

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir() + "/nested/db"
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)

	assert.False(t, backend.IsClosed())

	err = backend.Close()
	require.NoError(t, err)

	assert.True(t, backend.IsClosed())
}

func TestBackendUpdate(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	t.Run("commits on success", func(t *testing.T) {
		err := backend.update(func(tx *badger.Txn) error {
			return tx.Set([]byte("k"), []byte("v"))
		})
		require.NoError(t, err)

		err = backend.WithTx(func(tx *badger.Txn) error {
			_, err := tx.Get([]byte("k"))
			return err
		}, false)
		assert.NoError(t, err)
	})

	t.Run("discards on error", func(t *testing.T) {
		testErr := errors.New("boom")
		err := backend.update(func(tx *badger.Txn) error {
			if err := tx.Set([]byte("k2"), []byte("v")); err != nil {
				return err
			}
			return testErr
		})
		assert.Equal(t, testErr, err)

		err = backend.WithTx(func(tx *badger.Txn) error {
			_, err := tx.Get([]byte("k2"))
			return err
		}, false)
		assert.ErrorIs(t, err, badger.ErrKeyNotFound)
	})
}

func TestStorageErr(t *testing.T) {
	assert.NoError(t, storageErr(nil))

	err := storageErr(errors.New("disk full"))
	assert.ErrorIs(t, err, core.ErrStorage)

	already := storageErr(err)
	assert.Equal(t, err, already)
}

func TestDotProduct(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{name: "identical vectors", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, expected: 1},
		{name: "orthogonal vectors", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, expected: 0},
		{name: "opposite vectors", a: []float32{1, 0, 0}, b: []float32{-1, 0, 0}, expected: -1},
		{name: "general case", a: []float32{0.6, 0.8}, b: []float32{0.8, 0.6}, expected: 0.96},
		{name: "different lengths - use min", a: []float32{1, 2, 3}, b: []float32{1, 2}, expected: 5},
		{name: "empty vectors", a: []float32{}, b: []float32{}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, dotProduct(tt.a, tt.b), 0.0001)
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 0}, []float32{5, 0}), 0.0001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 3}), 0.0001)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 1}, []float32{-2, -2}), 0.0001)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestEuclidDistance(t *testing.T) {
	assert.InDelta(t, 5.0, euclidDistance([]float32{0, 0}, []float32{3, 4}), 0.0001)
	assert.InDelta(t, 0.0, euclidDistance([]float32{1, 1}, []float32{1, 1}), 0.0001)
}

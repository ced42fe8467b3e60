package badger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepStore(t *testing.T) {
	ctx := context.Background()
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()
	steps := stores.Steps

	t.Run("missing step returns nil", func(t *testing.T) {
		result, err := steps.LoadStep(ctx, "run-1", "load-and-chunk")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("save then load", func(t *testing.T) {
		err := steps.SaveStep(ctx, &core.StepResult{
			RunID:  "run-1",
			StepID: "load-and-chunk",
			Value:  json.RawMessage(`["a","b"]`),
		})
		require.NoError(t, err)

		result, err := steps.LoadStep(ctx, "run-1", "load-and-chunk")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.JSONEq(t, `["a","b"]`, string(result.Value))
		assert.False(t, result.CreatedAt.IsZero())
	})

	t.Run("write once", func(t *testing.T) {
		err := steps.SaveStep(ctx, &core.StepResult{
			RunID:  "run-1",
			StepID: "load-and-chunk",
			Value:  json.RawMessage(`["changed"]`),
		})
		assert.ErrorIs(t, err, storage.ErrStepExists)

		result, err := steps.LoadStep(ctx, "run-1", "load-and-chunk")
		require.NoError(t, err)
		assert.JSONEq(t, `["a","b"]`, string(result.Value))
	})

	t.Run("steps are scoped per run", func(t *testing.T) {
		result, err := steps.LoadStep(ctx, "run-2", "load-and-chunk")
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

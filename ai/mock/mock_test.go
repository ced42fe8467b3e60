package mock

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/poiesic/ragflow/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	embedder := NewMockEmbedderWithDimension(16)

	a, err := embedder.EmbedText(ctx, "hello")
	require.NoError(t, err)
	b, err := embedder.EmbedText(ctx, "hello")
	require.NoError(t, err)
	c, err := embedder.EmbedText(ctx, "world")
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedder_Batch(t *testing.T) {
	ctx := context.Background()
	embedder := NewMockEmbedder()

	vectors, err := embedder.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, DeterministicVector("a", DefaultDimension), vectors[0])
	assert.Equal(t, 1, embedder.CallCount())
	assert.Equal(t, []string{"a", "b"}, embedder.Inputs())

	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("down")
	}
	_, err = embedder.EmbedTexts(ctx, []string{"c"})
	assert.Error(t, err)

	embedder.Reset()
	assert.Zero(t, embedder.CallCount())
	assert.Empty(t, embedder.Inputs())
}

func TestMockGenerator(t *testing.T) {
	ctx := context.Background()
	gen := NewMockGenerator("42")

	answer, err := gen.Generate(ctx, "sys", "what is it?", ai.DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
	assert.Equal(t, "what is it?", gen.LastPrompt())
	assert.Equal(t, []GenerateCall{{System: "sys", Prompt: "what is it?", Options: ai.DefaultGenerateOptions()}}, gen.Calls())

	gen.GenerateFunc = func(ctx context.Context, system, prompt string, opts ai.GenerateOptions) (string, error) {
		return "", errors.New("quota")
	}
	_, err = gen.Generate(ctx, "", "x", ai.GenerateOptions{})
	assert.Error(t, err)
	assert.Equal(t, 2, gen.CallCount())
}

func TestMockProvider(t *testing.T) {
	provider := NewMockProvider().(*MockProvider)
	assert.Same(t, provider.GetMockEmbedder(), provider.Embedder())
	assert.Same(t, provider.GetMockGenerator(), provider.Generator())

	require.NoError(t, provider.Close())
	assert.True(t, provider.Closed())
}

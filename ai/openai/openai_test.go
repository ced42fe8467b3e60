package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/ragflow/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

type recordingModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	response *llms.ContentResponse
	err      error
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.opts)
	}
	return m.response, m.err
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerator_Generate(t *testing.T) {
	model := &recordingModel{
		response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  Paris.\n"}}},
	}
	gen := newGeneratorFromModel(model)

	answer, err := gen.Generate(context.Background(), "be brief", "capital of France?",
		ai.GenerateOptions{MaxTokens: 64, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.TextPart("be brief"), model.messages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextPart("capital of France?"), model.messages[1].Parts[0])
	assert.Equal(t, 64, model.opts.MaxTokens)
	assert.InDelta(t, 0.2, model.opts.Temperature, 1e-9)
}

func TestGenerator_NoSystemMessage(t *testing.T) {
	model := &recordingModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	gen := newGeneratorFromModel(model)

	_, err := gen.Generate(context.Background(), "", "hi", ai.GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, model.messages, 1)
	assert.Equal(t, ai.DefaultMaxTokens, model.opts.MaxTokens)
}

func TestGenerator_EmptyChoices(t *testing.T) {
	gen := newGeneratorFromModel(&recordingModel{response: &llms.ContentResponse{}})
	answer, err := gen.Generate(context.Background(), "", "hi", ai.DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Empty(t, answer)
}

func TestGenerator_Error(t *testing.T) {
	boom := errors.New("rate limited")
	gen := newGeneratorFromModel(&recordingModel{err: boom})
	_, err := gen.Generate(context.Background(), "", "hi", ai.DefaultGenerateOptions())
	assert.ErrorIs(t, err, boom)
}

func TestGenerator_FakeLLM(t *testing.T) {
	gen := newGeneratorFromModel(fake.NewFakeLLM([]string{"first", "second"}))
	ctx := context.Background()

	a, err := gen.Generate(ctx, "s", "p", ai.DefaultGenerateOptions())
	require.NoError(t, err)
	b, err := gen.Generate(ctx, "s", "p", ai.DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, []string{a, b})
}

func TestEmbedder(t *testing.T) {
	var seen [][]string
	client := embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		seen = append(seen, texts)
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	})
	emb, err := newEmbedderFromClient(client)
	require.NoError(t, err)
	ctx := context.Background()

	vectors, err := emb.EmbedTexts(ctx, []string{"ab", "line\nbreak"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {10}}, vectors)
	assert.Equal(t, "line break", seen[0][1], "newlines are stripped before embedding")

	vec, err := emb.EmbedText(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vec)

	calls := len(seen)
	empty, err := emb.EmbedTexts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Len(t, seen, calls, "empty input must not reach the backend")
}

func TestEmbedder_Error(t *testing.T) {
	boom := errors.New("unavailable")
	emb, err := newEmbedderFromClient(embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}))
	require.NoError(t, err)

	_, err = emb.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestToken(t *testing.T) {
	assert.Equal(t, "none", token(&ai.Config{}))
	assert.Equal(t, "sk-1", token(&ai.Config{APIKey: "sk-1"}))
}

func TestNewProvider(t *testing.T) {
	cfg := ai.NewConfig(ai.WithAPIKey("sk-test"), ai.WithHost("http://localhost:11434"))
	provider, err := NewProvider(cfg)
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.Generator())
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := ai.NewConfig(ai.WithDimension(0))
	_, err := NewProvider(cfg)
	assert.Error(t, err)
}

package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/ragflow/ai"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
)

// Pipeline answers questions over one collection.
type Pipeline struct {
	store        storage.VectorStore
	embedder     ai.Embedder
	generator    ai.Generator
	collection   string
	systemPrompt string
	genOpts      ai.GenerateOptions
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithGenerateOptions sets the token limit and temperature for answers.
// Default is 1024 tokens at temperature 0.2.
func WithGenerateOptions(opts ai.GenerateOptions) Option {
	return func(p *Pipeline) error {
		if opts.MaxTokens < 0 {
			return fmt.Errorf("%w: max tokens must not be negative", core.ErrInvalidArgument)
		}
		p.genOpts = opts.WithDefaults()
		return nil
	}
}

// WithSystemPrompt replaces the system instruction sent with every question.
func WithSystemPrompt(prompt string) Option {
	return func(p *Pipeline) error {
		p.systemPrompt = prompt
		return nil
	}
}

// NewPipeline creates a new query pipeline.
func NewPipeline(
	store storage.VectorStore,
	provider ai.AIProvider,
	collection string,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}

	p := &Pipeline{
		store:        store,
		embedder:     provider.Embedder(),
		generator:    provider.Generator(),
		collection:   collection,
		systemPrompt: SystemPrompt,
		genOpts:      ai.DefaultGenerateOptions(),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "query")

	return p, nil
}

// Retrieve embeds the question and returns the texts and distinct sources
// of the topK nearest passages. sourceFilter restricts the search to one
// source; "" and core.MatchAll disable filtering.
func (p *Pipeline) Retrieve(ctx context.Context, question string, topK int, sourceFilter string) (core.Retrieval, error) {
	points, err := p.retrieve(ctx, question, topK, sourceFilter)
	if err != nil {
		return core.Retrieval{}, err
	}
	return core.Project(points), nil
}

func (p *Pipeline) retrieve(ctx context.Context, question string, topK int, sourceFilter string) ([]core.ScoredPoint, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question", core.ErrMissingField)
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative", core.ErrValidation)
	}

	vector, err := p.embedder.EmbedText(ctx, question)
	if err != nil {
		p.logger.Error("error generating embedding for question", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}

	points, err := p.store.Search(ctx, p.collection, vector, topK, sourceFilter)
	if err != nil {
		p.logger.Error("error searching for passages", "err", err)
		if errors.Is(err, core.ErrStorage) {
			return nil, fmt.Errorf("searching %q: %w", p.collection, err)
		}
		return nil, fmt.Errorf("%w: searching %q: %w", core.ErrStorage, p.collection, err)
	}

	p.logger.Debug("retrieved passages", "count", len(points), "top_k", topK, "filter", sourceFilter)
	return points, nil
}

// Generate asks the model to answer question from the retrieved contexts.
// An empty retrieval still produces a generation call.
func (p *Pipeline) Generate(ctx context.Context, question string, retrieval core.Retrieval) (core.QueryResult, error) {
	return p.generate(ctx, question, retrieval, &noopMonitor{})
}

func (p *Pipeline) generate(ctx context.Context, question string, retrieval core.Retrieval, monitor Monitor) (core.QueryResult, error) {
	prompt := BuildPrompt(question, retrieval.Contexts)
	monitor.BeforeGeneration(prompt)

	answer, err := p.generator.Generate(ctx, p.systemPrompt, prompt, p.genOpts)
	if err != nil {
		p.logger.Error("error generating answer", "err", err)
		return core.QueryResult{}, fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}

	sources := retrieval.Sources
	if sources == nil {
		sources = []string{}
	}
	return core.QueryResult{
		Answer:      strings.TrimSpace(answer),
		Sources:     sources,
		NumContexts: len(retrieval.Contexts),
	}, nil
}

// Answer retrieves passages for question and generates an answer from them.
func (p *Pipeline) Answer(ctx context.Context, question string, topK int, sourceFilter string) (core.QueryResult, error) {
	return p.AnswerWithMonitor(ctx, question, topK, sourceFilter, nil)
}

// AnswerWithMonitor is Answer with callbacks at each stage.
func (p *Pipeline) AnswerWithMonitor(ctx context.Context, question string, topK int, sourceFilter string, monitor Monitor) (core.QueryResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(question)

	points, err := p.retrieve(ctx, question, topK, sourceFilter)
	if err != nil {
		return core.QueryResult{}, err
	}
	monitor.AfterRetrieval(points)

	result, err := p.generate(ctx, question, core.Project(points), monitor)
	if err != nil {
		return core.QueryResult{}, err
	}
	monitor.Finish(result)

	p.logger.Info("answered question", "contexts", result.NumContexts, "sources", len(result.Sources))
	return result, nil
}

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

package ragflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragflow/ai"
	"github.com/poiesic/ragflow/ai/openai"
	"github.com/poiesic/ragflow/config"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/ingestion"
	"github.com/poiesic/ragflow/poller"
	"github.com/poiesic/ragflow/query"
	"github.com/poiesic/ragflow/storage"
	"github.com/poiesic/ragflow/storage/badger"
	"github.com/poiesic/ragflow/storage/qdrant"
	"github.com/poiesic/ragflow/workflow"
)

// Engine wires the stores, the AI provider, both pipelines and the
// workflow runner behind one handle.
type Engine struct {
	stores     *badger.Stores
	vectors    storage.VectorStore
	ownVectors bool
	provider   ai.AIProvider
	ingest     *ingestion.Pipeline
	query      *query.Pipeline
	runner     *workflow.Runner
	cfg        *config.Config
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	vectors  storage.VectorStore
	logger   *slog.Logger
	inMemory bool
}

// WithAIProvider replaces the OpenAI provider built from the configuration.
// The engine closes it on Close.
func WithAIProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithVectorStore replaces the vector store selected by the configuration.
// The caller keeps ownership of it.
func WithVectorStore(vs storage.VectorStore) Option {
	return func(o *engineOptions) {
		o.vectors = vs
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithInMemory keeps all state in memory instead of cfg.DataDir.
func WithInMemory() Option {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// Open builds an engine from cfg, ensures the configured collection exists
// and registers the ingest and query functions. Runs left unfinished by a
// previous process are not resumed; call ResumePending for that.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{
		cfg:    cfg,
		logger: options.logger.With("component", "engine"),
	}
	if err := e.open(ctx, options); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context, options *engineOptions) error {
	backend, err := badger.OpenBackend(e.cfg.DataDir, options.inMemory)
	if err != nil {
		return fmt.Errorf("opening data dir: %w", err)
	}
	e.stores, err = badger.NewStores(backend)
	if err != nil {
		backend.Close()
		return err
	}

	switch {
	case options.vectors != nil:
		e.vectors = options.vectors
	case e.cfg.VectorStore.Type == config.VectorStoreQdrant:
		qcfg, err := e.cfg.QdrantConfig()
		if err != nil {
			return err
		}
		vs, err := qdrant.New(qcfg, qdrant.WithLogger(options.logger))
		if err != nil {
			return err
		}
		e.vectors = vs
		e.ownVectors = true
	default:
		e.vectors = e.stores.Vectors
	}

	spec := e.cfg.CollectionSpec()
	if err := e.vectors.EnsureCollection(ctx, spec); err != nil {
		return fmt.Errorf("ensuring collection %s: %w", spec.Name, err)
	}

	aiConfig := e.cfg.AIConfig()
	if options.provider != nil {
		e.provider = options.provider
	} else {
		e.provider, err = openai.NewProvider(aiConfig)
		if err != nil {
			return err
		}
	}

	ingestOpts := []ingestion.Option{
		ingestion.WithChunking(e.cfg.Chunking.Size, e.cfg.Chunking.Overlap),
		ingestion.WithLogger(options.logger),
	}
	if e.cfg.Workflow.PoolSize > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithPoolSize(e.cfg.Workflow.PoolSize))
	}
	e.ingest, err = ingestion.NewPipeline(e.vectors, e.provider.Embedder(), spec.Name, ingestOpts...)
	if err != nil {
		return err
	}

	e.query, err = query.NewPipeline(e.vectors, e.provider, spec.Name,
		query.WithGenerateOptions(aiConfig.GenerateOptions()),
		query.WithLogger(options.logger),
	)
	if err != nil {
		return err
	}

	runnerOpts := []workflow.Option{
		workflow.WithRetryPolicy(e.cfg.RetryPolicy()),
		workflow.WithFunctions(IngestFunction(e.ingest), QueryFunction(e.query)),
		workflow.WithLogger(options.logger),
	}
	if e.cfg.Workflow.PoolSize > 0 {
		runnerOpts = append(runnerOpts, workflow.WithPoolSize(e.cfg.Workflow.PoolSize))
	}
	e.runner, err = workflow.NewRunner(e.stores.Runs, e.stores.Steps, runnerOpts...)
	if err != nil {
		return err
	}

	e.logger.Info("engine ready", "collection", spec.Name, "dimension", spec.Dimension, "vector_store", e.cfg.VectorStore.Type)
	return nil
}

// Close waits for in-flight runs and releases every resource.
func (e *Engine) Close() error {
	var errs []error
	if e.runner != nil {
		if err := e.runner.Close(); err != nil {
			e.logger.Error("error closing workflow runner", "err", err)
			errs = append(errs, err)
		}
	}
	if e.ingest != nil {
		e.ingest.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.ownVectors {
		if err := e.vectors.Close(); err != nil {
			e.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if e.stores != nil {
		if err := e.stores.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send accepts a named event with JSON data and returns its event id.
func (e *Engine) Send(ctx context.Context, name string, data []byte) (string, error) {
	return e.runner.Send(ctx, name, data)
}

// SendEvent accepts a typed event and returns its event id.
func (e *Engine) SendEvent(ctx context.Context, event core.Event) (string, error) {
	return e.runner.SendEvent(ctx, event)
}

// FetchRuns returns the runs triggered by an event.
func (e *Engine) FetchRuns(ctx context.Context, eventID string) ([]*core.Run, error) {
	return e.runner.FetchRuns(ctx, eventID)
}

// GetRun returns a run by id.
func (e *Engine) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	return e.runner.GetRun(ctx, runID)
}

// Cancel cancels a run that has not finished.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	return e.runner.Cancel(ctx, runID)
}

// ResumePending reschedules runs interrupted by a previous shutdown.
func (e *Engine) ResumePending(ctx context.Context) (int, error) {
	return e.runner.ResumePending(ctx)
}

// Wait blocks until every scheduled run has finished.
func (e *Engine) Wait() {
	e.runner.Wait()
}

// Poller returns a poller over this engine's runs, using the configured
// timeout and interval unless opts override them.
func (e *Engine) Poller(opts ...poller.Option) (*poller.Poller, error) {
	all := append(e.cfg.PollerOptions(), poller.WithLogger(e.logger))
	return poller.NewPoller(e, append(all, opts...)...)
}

// Ingest runs the ingestion pipeline directly, outside the workflow runner.
func (e *Engine) Ingest(ctx context.Context, sourceID, rawText string) (core.IngestResult, error) {
	return e.ingest.Ingest(ctx, sourceID, rawText)
}

// IngestAll ingests documents concurrently on the ingestion pipeline's
// worker pool, outside the workflow runner. onDone is called once per
// document.
func (e *Engine) IngestAll(ctx context.Context, docs []ingestion.Document, onDone func(ingestion.Document, core.IngestResult, error)) error {
	return e.ingest.IngestAll(ctx, docs, onDone)
}

// Answer runs the query pipeline directly, outside the workflow runner.
func (e *Engine) Answer(ctx context.Context, question string, topK int, sourceFilter string) (core.QueryResult, error) {
	return e.query.Answer(ctx, question, topK, sourceFilter)
}

// IngestionPipeline exposes the ingestion pipeline.
func (e *Engine) IngestionPipeline() *ingestion.Pipeline {
	return e.ingest
}

// QueryPipeline exposes the query pipeline.
func (e *Engine) QueryPipeline() *query.Pipeline {
	return e.query
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

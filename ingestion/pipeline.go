package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragflow/ai"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
)

// Pipeline orchestrates chunking, embedding, and storing documents.
type Pipeline struct {
	store        storage.VectorStore
	embedder     ai.Embedder
	collection   string
	chunker      *Chunker
	chunkSize    int
	chunkOverlap int
	pool         *ants.Pool
	logger       *slog.Logger
}

// Document is one unit of work for IngestAll.
type Document struct {
	SourceID string
	Text     string
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size used by IngestAll.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithChunking sets the passage size and overlap in runes.
// Default is 1000 and 200.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		p.chunkSize = size
		p.chunkOverlap = overlap
		return nil
	}
}

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

// NewPipeline creates a new ingestion pipeline writing into collection.
// The collection must already exist in the store.
func NewPipeline(
	store storage.VectorStore,
	embedder ai.Embedder,
	collection string,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:        store,
		embedder:     embedder,
		collection:   collection,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		pool:         pool,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	// Chunker is built after options so it sees the final sizes
	p.chunker, err = NewChunker(p.chunkSize, p.chunkOverlap)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Chunk splits raw text into the indexed chunks of sourceID. It performs
// no I/O.
func (p *Pipeline) Chunk(sourceID, rawText string) ([]core.Chunk, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, fmt.Errorf("%w: source_id", core.ErrMissingField)
	}
	passages, err := p.chunker.Split(rawText)
	if err != nil {
		return nil, err
	}
	chunks := make([]core.Chunk, len(passages))
	for i, passage := range passages {
		chunks[i] = core.Chunk{SourceID: sourceID, Index: i, Text: passage}
	}
	return chunks, nil
}

// Store embeds chunks and upserts one point per chunk under an id derived
// from its source and index. Re-storing the same source overwrites its
// points. No chunks means no embedding and no write.
func (p *Pipeline) Store(ctx context.Context, chunks []core.Chunk) (core.IngestResult, error) {
	if len(chunks) == 0 {
		p.logger.Info("no passages to store")
		return core.IngestResult{Ingested: 0}, nil
	}
	sourceID := chunks[0].SourceID

	passages := make([]string, len(chunks))
	for i, chunk := range chunks {
		passages[i] = chunk.Text
	}
	vectors, err := embedPassages(ctx, p.embedder, passages, p.logger)
	if err != nil {
		return core.IngestResult{}, err
	}

	ids := make([]core.PointID, len(chunks))
	payloads := make([]core.Payload, len(chunks))
	for i, chunk := range chunks {
		ids[i] = core.PointIDFor(chunk.SourceID, chunk.Index)
		payloads[i] = core.Payload{Text: chunk.Text, Source: chunk.SourceID}
	}

	if err := p.store.Upsert(ctx, p.collection, ids, vectors, payloads); err != nil {
		p.logger.Error("error upserting passages", "source", sourceID, "err", err)
		return core.IngestResult{}, fmt.Errorf("storing passages for %q: %w", sourceID, err)
	}

	p.logger.Info("ingested document", "source", sourceID, "passages", len(chunks))
	return core.IngestResult{Ingested: len(chunks)}, nil
}

// Ingest chunks, embeds, and stores one document.
func (p *Pipeline) Ingest(ctx context.Context, sourceID, rawText string) (core.IngestResult, error) {
	chunks, err := p.Chunk(sourceID, rawText)
	if err != nil {
		return core.IngestResult{}, err
	}
	return p.Store(ctx, chunks)
}

// IngestAll ingests documents concurrently on the worker pool. onDone, if
// not nil, is called once per document from a worker goroutine. The
// returned error joins every per-document failure.
func (p *Pipeline) IngestAll(ctx context.Context, docs []Document, onDone func(Document, core.IngestResult, error)) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	record := func(doc Document, result core.IngestResult, err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", doc.SourceID, err))
			mu.Unlock()
		}
		if onDone != nil {
			onDone(doc, result, err)
		}
	}

	for _, doc := range docs {
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			result, err := p.Ingest(ctx, doc.SourceID, doc.Text)
			record(doc, result, err)
		})
		if submitErr != nil {
			wg.Done()
			record(doc, core.IngestResult{}, submitErr)
		}
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

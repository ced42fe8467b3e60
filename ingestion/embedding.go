package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragflow/ai"
	"github.com/poiesic/ragflow/core"
)

// embedPassages embeds all passages in one batched call and checks that
// exactly one vector came back per passage.
func embedPassages(ctx context.Context, embedder ai.Embedder, passages []string, logger *slog.Logger) ([][]float32, error) {
	logger.Debug("generating embeddings for passages", "passages", len(passages))
	vectors, err := embedder.EmbedTexts(ctx, passages)
	if err != nil {
		logger.Error("error generating embeddings", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}

	if len(vectors) != len(passages) {
		return nil, fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
			core.ErrEmbedding, len(passages), len(vectors))
	}
	return vectors, nil
}

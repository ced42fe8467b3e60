package ingestion

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragflow/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the maximum passage length in runes.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of runes shared by adjacent passages.
	DefaultChunkOverlap = 200
)

// Chunker splits raw document text into overlapping passages, preferring
// paragraph, then line, then word boundaries.
type Chunker struct {
	splitter textsplitter.TextSplitter
	size     int
	overlap  int
}

// NewChunker creates a chunker producing passages of at most size runes
// with the given overlap.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk size must be >= 1", core.ErrInvalidArgument)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d)", core.ErrInvalidArgument, size)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
		size:    size,
		overlap: overlap,
	}, nil
}

// Split returns the passages of text in document order.
// Empty or whitespace-only text yields no passages; whitespace-only
// passages are dropped.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}

	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, part)
	}
	return chunks, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured chunk overlap.
func (c *Chunker) Overlap() int { return c.overlap }

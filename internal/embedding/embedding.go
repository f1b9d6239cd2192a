// Package embedding turns chunk text into dense vectors through a Genkit
// embedder. The whole batch for a document goes out in one request, and the
// response is validated before anything reaches storage: a count mismatch or
// an empty vector aborts the batch.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
)

// Sentinel errors for embedding validation.
var (
	// ErrCountMismatch means the provider returned a different number of
	// vectors than texts sent. Positional alignment is broken and no vector
	// in the response can be trusted.
	ErrCountMismatch = errors.New("embedding count does not match input count")

	// ErrEmptyEmbedding means the provider returned a zero-length vector.
	ErrEmptyEmbedding = errors.New("empty embedding returned")

	// ErrDimensionMismatch means a vector's dimensionality differs from the
	// configured storage dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Generator embeds batches of chunk text.
type Generator struct {
	embedder  ai.Embedder
	dimension int
	logger    *slog.Logger
}

// NewGenerator creates a Generator. dimension is the expected vector width;
// zero disables the dimension check.
func NewGenerator(embedder ai.Embedder, dimension int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{embedder: embedder, dimension: dimension, logger: logger}
}

// EmbedTexts embeds all texts in a single request and returns vectors in
// input order. Validation is all-or-nothing: any count, emptiness, or
// dimension violation fails the whole batch so that a partial write can
// never reach the store. An empty input returns nil without calling the
// provider.
func (g *Generator) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d",
			ErrCountMismatch, len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: position %d", ErrEmptyEmbedding, i)
		}
		if g.dimension > 0 && len(emb.Embedding) != g.dimension {
			return nil, fmt.Errorf("%w: position %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, len(emb.Embedding), g.dimension)
		}
		vectors[i] = emb.Embedding
	}

	g.logger.Debug("embedded batch", "texts", len(texts))
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Package retriever turns a question into the ranked document chunks that
// ground its answer.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Result is a retrieved chunk with its similarity score.
type Result struct {
	Chunk *models.DocumentChunk `json:"chunk"`
	Score float64               `json:"score"`
}

// Retriever embeds a question, searches the vector index, filters by the
// similarity threshold, and hydrates the surviving hits from storage.
type Retriever struct {
	embedder  embedding.Embedder
	index     vector.Index
	store     storage.Storage
	topK      int
	threshold float64
	logger    *zap.Logger
}

// New creates a Retriever. topK and threshold come from retrieval config.
func New(embedder embedding.Embedder, index vector.Index, store storage.Storage, topK int, threshold float64, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder:  embedder,
		index:     index,
		store:     store,
		topK:      topK,
		threshold: threshold,
		logger:    logger,
	}
}

// Retrieve returns up to topK chunks whose similarity to the question meets
// the threshold, ordered by descending score. topK <= 0 and threshold < 0
// fall back to the configured defaults (zero is a valid threshold meaning
// "keep everything"). An empty result is a valid outcome, not an error: it
// means the knowledge base has nothing relevant.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, threshold float64) ([]*Result, error) {
	if topK <= 0 {
		topK = r.topK
	}
	if threshold < 0 {
		threshold = r.threshold
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := r.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	var kept []*vector.Hit
	for _, hit := range hits {
		if hit.Score >= threshold {
			kept = append(kept, hit)
		}
	}
	if len(kept) == 0 {
		r.logger.Debug("no chunks above threshold",
			zap.Int("candidates", len(hits)),
			zap.Float64("threshold", threshold))
		return nil, nil
	}

	ids := make([]string, len(kept))
	for i, hit := range kept {
		ids[i] = hit.ChunkID
	}
	chunks, err := r.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	// Index entries can briefly outlive their rows during a delete; hydration
	// drops those, so join scores back by ID.
	scores := make(map[string]float64, len(kept))
	for _, hit := range kept {
		scores[hit.ChunkID] = hit.Score
	}
	results := make([]*Result, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, &Result{Chunk: chunk, Score: scores[chunk.ID]})
	}
	return results, nil
}

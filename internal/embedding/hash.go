package embedding

import (
	"context"
	"math"
	"sync/atomic"
)

// HashEmbedder is a deterministic embedder that derives a unit-length vector
// from the hashes of the input's words. The same text always yields the same
// vector, and texts sharing words land near each other, which is enough for
// tests and for running the pipeline without a local model. Not a semantic
// embedding.
type HashEmbedder struct {
	dimensions int
	closed     atomic.Bool
}

// NewHashEmbedder returns a deterministic embedder of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns a normalized embedding derived from the text's word hashes.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.closed.Load() {
		return nil, errModelClosed
	}
	words := SplitWords(text)
	if len(words) == 0 {
		return nil, errEmptyText
	}
	emb := make([]float32, e.dimensions)
	for _, word := range words {
		h := HashString(word)
		for i := 0; i < e.dimensions; i++ {
			emb[i] += float32(math.Sin(float64(h*(i+1))) * 0.1)
		}
	}
	normalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text, preserving order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close marks the embedder unusable; subsequent Embed calls fail.
func (e *HashEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}

// normalizeL2 scales the vector in place to unit length. Zero vectors are
// left unchanged.
func normalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}

// Package vector provides the chunk vector index and similarity search.
package vector

import (
	"context"
	"fmt"
)

// Payload is the metadata stored alongside a chunk's vector, returned with
// search hits so callers can attribute results without a storage round trip.
type Payload struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Filename   string `json:"filename,omitempty"`
}

// Hit is a single search result, ranked by descending cosine similarity.
type Hit struct {
	ChunkID string
	Score   float64
	Payload Payload
}

// Index stores (chunk ID, vector, payload) entries and supports similarity
// search. Implementations must make Upsert atomic with respect to concurrent
// Search calls.
type Index interface {
	// Upsert stores or replaces the entry for chunkID. Fails with
	// *DimensionMismatchError if the vector length differs from the index
	// dimension.
	Upsert(ctx context.Context, chunkID string, vec []float32, payload Payload) error
	// Search returns up to topK hits ranked by descending cosine
	// similarity. Ties are broken by insertion order (earlier-inserted
	// first) so ordering is deterministic.
	Search(ctx context.Context, query []float32, topK int) ([]*Hit, error)
	// Delete removes the entry for chunkID. Idempotent.
	Delete(ctx context.Context, chunkID string) error
	// Clear removes every entry and resets insertion ordering.
	Clear(ctx context.Context) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// DimensionMismatchError signals a vector whose length does not match the
// index dimension. It indicates data corruption on the write path and should
// be surfaced, not retried.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Got, e.Want)
}

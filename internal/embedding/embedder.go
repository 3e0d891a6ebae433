// Package embedding provides text embedding behind a model-agnostic
// interface, with an ONNX implementation and result caching.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text. Embedders
// are safe for concurrent use; the model is loaded once and shared for the
// process lifetime, with Close tearing it down.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch is order- and length-preserving with respect to texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Error is returned when an embedding cannot be produced (empty input, or
// the model is unavailable/unloaded).
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "embedding: " + e.Reason
}

var (
	errEmptyText   = &Error{Reason: "text is empty"}
	errModelClosed = &Error{Reason: "model is closed"}
)

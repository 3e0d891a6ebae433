// Package pipeline orchestrates the answer pipeline: ingestion, retrieval,
// generation, caching, and persistence.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Pipeline wires the answer pipeline components together. All operations are
// safe for concurrent use; batch generation serializes LLM calls internally.
type Pipeline struct {
	store     storage.Storage
	embedder  embedding.Embedder
	index     vector.Index
	chunker   *chunker.Chunker
	retriever *retriever.Retriever
	generator *generator.Generator
	cache     *cache.AnswerCache
	extractor *extract.Extractor
	limiter   *rate.Limiter
	indexPath string
	logger    *zap.Logger
}

// New assembles a Pipeline from its components. extractor may be nil, in
// which case file ingestion treats every file as plain text; gen may be nil,
// in which case answer generation returns an error. indexPath is where the
// vector index is persisted after mutations.
func New(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	retr *retriever.Retriever,
	gen *generator.Generator,
	answerCache *cache.AnswerCache,
	extractor *extract.Extractor,
	cfg *config.Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	ch, err := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, cfg.Retrieval.Separator)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if rpm := cfg.Generation.RequestsPerMinute; rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
	}

	return &Pipeline{
		store:     store,
		embedder:  embedder,
		index:     index,
		chunker:   ch,
		retriever: retr,
		generator: gen,
		cache:     answerCache,
		extractor: extractor,
		limiter:   limiter,
		indexPath: cfg.Storage.VectorIndexPath,
		logger:    logger,
	}, nil
}

// SearchChunks retrieves chunks relevant to query without generating an
// answer. Used by the search endpoint and CLI. topK <= 0 and threshold < 0
// use the configured defaults.
func (p *Pipeline) SearchChunks(ctx context.Context, query string, topK int, threshold float64) ([]*retriever.Result, error) {
	return p.retriever.Retrieve(ctx, query, topK, threshold)
}

// RebuildIndex reconstructs the vector index from persisted chunks, using
// stored embeddings when present and re-embedding chunks that lack one. The
// rebuilt index is saved before returning.
func (p *Pipeline) RebuildIndex(ctx context.Context) (int, error) {
	chunks, err := p.store.AllChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load chunks: %w", err)
	}
	if err := p.index.Clear(ctx); err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, chunk := range chunks {
		vec := chunk.Embedding
		if len(vec) != p.embedder.Dimensions() {
			vec, err = p.embedder.Embed(ctx, chunk.Content)
			if err != nil {
				p.logger.Warn("failed to re-embed chunk during rebuild",
					zap.String("chunk_id", chunk.ID), zap.Error(err))
				continue
			}
		}
		if err := p.index.Upsert(ctx, chunk.ID, vec, vector.Payload{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Filename:   chunk.Filename,
		}); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}

	if err := p.saveIndex(); err != nil {
		return rebuilt, err
	}
	p.logger.Info("vector index rebuilt", zap.Int("chunks", rebuilt))
	return rebuilt, nil
}

// Cache returns the answer cache, for stats reporting.
func (p *Pipeline) Cache() *cache.AnswerCache {
	return p.cache
}

// IndexSize returns the number of vectors currently indexed.
func (p *Pipeline) IndexSize() int {
	return p.index.Size()
}

func (p *Pipeline) saveIndex() error {
	if p.indexPath == "" {
		return nil
	}
	if err := p.index.Save(p.indexPath); err != nil {
		return fmt.Errorf("failed to persist vector index: %w", err)
	}
	return nil
}

// waitForSlot blocks until the rate limiter admits another LLM call.
func (p *Pipeline) waitForSlot(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

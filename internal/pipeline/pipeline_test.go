package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// scriptLLM replays canned completions and can be told to fail specific
// calls (1-based).
type scriptLLM struct {
	response string
	failOn   map[int]bool
	calls    int
}

func (s *scriptLLM) Complete(_ context.Context, _ generator.Request) (string, error) {
	s.calls++
	if s.failOn[s.calls] {
		return "", &generator.Error{Reason: "scripted failure", Retryable: true}
	}
	return fmt.Sprintf("%s (call %d)\nCONFIDENCE: 0.7", s.response, s.calls), nil
}

func (s *scriptLLM) Model() string { return "script-model" }

// scriptEmbedder returns fixed vectors by exact text so tests control
// similarity scores.
type scriptEmbedder struct {
	vectors map[string][]float32
	dims    int
}

func (s *scriptEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return nil, &embedding.Error{Reason: "no scripted vector for " + text}
}

func (s *scriptEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *scriptEmbedder) Dimensions() int { return s.dims }
func (s *scriptEmbedder) Close() error    { return nil }

func newTestPipeline(t *testing.T, llm generator.LLM) (*Pipeline, storage.Storage) {
	t.Helper()
	// Hash embeddings are not semantic, so the default tests disable the
	// similarity threshold.
	return newTestPipelineWith(t, llm, embedding.NewHashEmbedder(16), 0)
}

func newTestPipelineWith(t *testing.T, llm generator.LLM, embedder embedding.Embedder, threshold float64) (*Pipeline, storage.Storage) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "test.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "index.bin")
	cfg.Retrieval.ChunkSize = 50
	cfg.Retrieval.ChunkOverlap = 10
	cfg.Retrieval.SimilarityThreshold = threshold
	cfg.Generation.RequestsPerMinute = 0

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	index := vector.NewMemoryIndex(embedder.Dimensions())
	t.Cleanup(func() { index.Close() })

	logger := zap.NewNop()
	retr := retriever.New(embedder, index, store, cfg.Retrieval.TopK, cfg.Retrieval.SimilarityThreshold, logger)
	gen := generator.New(llm, cfg.Generation.MaxTokens, cfg.Generation.Temperature, cfg.Generation.MaxContextUnits, logger)

	answerCache, err := cache.NewAnswerCache(context.Background(), store, logger)
	if err != nil {
		t.Fatal(err)
	}

	p, err := New(store, embedder, index, retr, gen, answerCache, nil, cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	return p, store
}

func ingestDoc(t *testing.T, p *Pipeline, id, content string) *models.Document {
	t.Helper()
	doc, err := p.IngestDocument(context.Background(), &models.DocumentInput{
		ID: id, Filename: id + ".txt", Content: content,
	})
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestIngestDocument(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPipeline(t, &scriptLLM{response: "ok"})

	doc := ingestDoc(t, p, "d1", "We encrypt customer data at rest with AES-256 and in transit with TLS 1.3.")
	if doc.Status != models.DocStatusCompleted {
		t.Errorf("status = %s", doc.Status)
	}
	if doc.ChunkCount == 0 {
		t.Error("no chunks produced")
	}
	if p.IndexSize() != doc.ChunkCount {
		t.Errorf("index size = %d, chunk count = %d", p.IndexSize(), doc.ChunkCount)
	}

	chunks, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != doc.ChunkCount {
		t.Errorf("stored %d chunks, want %d", len(chunks), doc.ChunkCount)
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != 16 {
			t.Errorf("chunk %s embedding not persisted", chunk.ID)
		}
	}
}

func TestReingestReplacesChunks(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPipeline(t, &scriptLLM{response: "ok"})

	ingestDoc(t, p, "d1", "original content about encryption standards and policies")
	ingestDoc(t, p, "d1", "replacement text")

	chunks, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Content != "replacement text" {
		t.Errorf("chunks after re-ingest: %+v", chunks)
	}
	if p.IndexSize() != 1 {
		t.Errorf("index size = %d, want 1 (old entries removed)", p.IndexSize())
	}
}

func TestSearchChunks(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptLLM{response: "ok"})
	ingestDoc(t, p, "d1", "our uptime SLA is 99.9 percent")

	results, err := p.SearchChunks(context.Background(), "uptime SLA", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].Chunk.DocumentID != "d1" {
		t.Errorf("got %+v", results[0].Chunk)
	}
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPipeline(t, &scriptLLM{response: "ok"})
	ingestDoc(t, p, "d1", "some document text")

	if err := p.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if p.IndexSize() != 0 {
		t.Errorf("index size = %d after delete", p.IndexSize())
	}
	n, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("chunk count = %d after delete", n)
	}

	// Unknown ID is a no-op.
	if err := p.DeleteDocument(ctx, "never-existed"); err != nil {
		t.Errorf("deleting unknown document: %v", err)
	}
}

func TestRebuildIndex(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t, &scriptLLM{response: "ok"})
	ingestDoc(t, p, "d1", "first document")
	ingestDoc(t, p, "d2", "second document")

	n, err := p.RebuildIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rebuilt %d entries, want 2", n)
	}
	if p.IndexSize() != 2 {
		t.Errorf("index size = %d", p.IndexSize())
	}

	results, err := p.SearchChunks(ctx, "first document", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Error("search broken after rebuild")
	}
}

func TestIndexPersistsAcrossReload(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptLLM{response: "ok"})
	ingestDoc(t, p, "d1", "persisted document text")

	// Ingest saved the index; a fresh index loads it back.
	fresh := vector.NewMemoryIndex(16)
	defer fresh.Close()
	if err := fresh.Load(p.indexPath); err != nil {
		t.Fatal(err)
	}
	if fresh.Size() != p.IndexSize() {
		t.Errorf("reloaded size = %d, want %d", fresh.Size(), p.IndexSize())
	}
}

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// IngestDocument stores a document, chunks it, embeds the chunks, and indexes
// them. Re-ingesting an existing ID replaces the previous chunks. The
// document status tracks progress and lands on completed or failed.
func (p *Pipeline) IngestDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}

	// Replace semantics for re-ingestion.
	if _, err := p.store.GetDocument(ctx, input.ID); err == nil {
		if err := p.DeleteDocument(ctx, input.ID); err != nil {
			return nil, fmt.Errorf("failed to replace document: %w", err)
		}
	}

	doc := &models.Document{
		ID:       input.ID,
		Filename: input.Filename,
		Content:  input.Content,
		Status:   models.DocStatusProcessing,
		Metadata: input.Metadata,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	chunks, err := p.buildChunks(ctx, doc)
	if err != nil {
		doc.Status = models.DocStatusFailed
		if updateErr := p.store.UpdateDocument(ctx, doc); updateErr != nil {
			p.logger.Error("failed to mark document failed", zap.String("doc_id", doc.ID), zap.Error(updateErr))
		}
		return nil, err
	}

	doc.Status = models.DocStatusCompleted
	doc.ChunkCount = len(chunks)
	if err := p.store.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to finalize document: %w", err)
	}
	if err := p.saveIndex(); err != nil {
		return nil, err
	}

	p.logger.Info("document ingested",
		zap.String("doc_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// buildChunks chunks, embeds, stores, and indexes the document's content.
func (p *Pipeline) buildChunks(ctx context.Context, doc *models.Document) ([]*models.DocumentChunk, error) {
	pieces := p.chunker.Chunk(doc.Content)
	if len(pieces) == 0 {
		return nil, nil
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	chunks := make([]*models.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &models.DocumentChunk{
			ID:         fmt.Sprintf("%s_%d", doc.ID, piece.Index),
			DocumentID: doc.ID,
			ChunkIndex: piece.Index,
			Content:    piece.Text,
			Filename:   doc.Filename,
			CharOffset: piece.CharOffset,
			Embedding:  embeddings[i],
		}
	}
	if err := p.store.BatchCreateChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	for _, chunk := range chunks {
		if err := p.index.Upsert(ctx, chunk.ID, chunk.Embedding, vector.Payload{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Filename:   chunk.Filename,
		}); err != nil {
			return nil, fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
		}
	}
	return chunks, nil
}

// DeleteDocument removes a document, its chunks, and their index entries,
// and invalidates cached answers that cite the deleted chunks. Deleting an
// unknown ID is a no-op.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) error {
	chunks, err := p.store.GetChunksByDocumentID(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to load chunks for delete: %w", err)
	}

	chunkIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		if err := p.index.Delete(ctx, chunk.ID); err != nil {
			return fmt.Errorf("failed to remove chunk %s from index: %w", chunk.ID, err)
		}
	}

	if err := p.store.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	invalidated, err := p.cache.InvalidateByChunks(ctx, chunkIDs)
	if err != nil {
		p.logger.Warn("failed to invalidate cached answers", zap.String("doc_id", docID), zap.Error(err))
	}
	if err := p.saveIndex(); err != nil {
		return err
	}

	p.logger.Info("document deleted",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunkIDs)),
		zap.Int("cache_invalidated", invalidated))
	return nil
}

// IngestFile extracts text from the file at path and ingests it. The
// document ID is derived from the absolute path so re-ingesting a file
// updates the same document; unchanged files (same mtime and size) are
// skipped. Returns the document, or nil when the file was skipped.
func (p *Pipeline) IngestFile(ctx context.Context, path string, allowedExts []string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	docID := fileid.FileDocID(absPath)
	if p.shouldSkipFile(ctx, absPath, docID, info) {
		p.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return nil, nil
	}

	text, err := p.extractContent(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	return p.IngestDocument(ctx, &models.DocumentInput{
		ID:       docID,
		Filename: filepath.Base(absPath),
		Content:  text,
		Metadata: map[string]interface{}{
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	})
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is allowed. Returns the number of files ingested (skipped files
// do not count) and the first error encountered.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	ingested := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		doc, err := p.IngestFile(ctx, path, allowedExts)
		if err != nil {
			p.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(err))
			return nil
		}
		if doc != nil {
			ingested++
		}
		return nil
	})
	return ingested, err
}

// shouldSkipFile reports whether the file is already ingested with the same
// mtime and size.
func (p *Pipeline) shouldSkipFile(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	if doc.Status != models.DocStatusCompleted {
		return false
	}
	// Stored as strings: UnixNano exceeds JSON's 53-bit float precision.
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func (p *Pipeline) extractContent(absPath string) (string, error) {
	if p.extractor != nil {
		return p.extractor.Extract(absPath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

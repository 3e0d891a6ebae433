// Package storage defines the persistence interface for documents, chunks,
// RFPs, questions, answers, and the answer cache.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines the persistence operations of the answer pipeline.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations. Embeddings are persisted alongside chunk text so the
	// vector index can be rebuilt without re-running the embedder.
	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error
	AllChunks(ctx context.Context) ([]*models.DocumentChunk, error)

	// RFP and question operations
	CreateRFP(ctx context.Context, rfp *models.RFP) error
	GetRFP(ctx context.Context, id string) (*models.RFP, error)
	ListRFPs(ctx context.Context, offset, limit int) ([]*models.RFP, error)
	UpdateRFPStatus(ctx context.Context, id, status string) error
	BatchCreateQuestions(ctx context.Context, questions []*models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	GetQuestionsByRFP(ctx context.Context, rfpID string) ([]*models.Question, error)

	// Answer operations. UpsertAnswer replaces the row for the question,
	// preserving RegeneratedCount bookkeeping done by the caller.
	UpsertAnswer(ctx context.Context, ans *models.Answer) error
	GetAnswerByQuestionID(ctx context.Context, questionID string) (*models.Answer, error)
	GetAnswersByRFP(ctx context.Context, rfpID string) ([]*models.Answer, error)

	// Answer cache operations
	UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error
	GetCacheEntry(ctx context.Context, fingerprint string) (*models.CacheEntry, error)
	ListCacheEntries(ctx context.Context) ([]*models.CacheEntry, error)
	DeleteCacheEntries(ctx context.Context, fingerprints []string) error
	IncrementCacheHit(ctx context.Context, fingerprint string) error
	CacheStats(ctx context.Context) (*models.CacheStats, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountAnswers(ctx context.Context) (int64, error)

	Close() error
}

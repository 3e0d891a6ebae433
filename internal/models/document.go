// Package models defines core data structures for documents, chunks, RFPs,
// questions, and answers.
package models

import "time"

// Document processing statuses.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Document is a knowledge-base document whose plain text has been extracted
// upstream. Chunks are derived from it and cascade-deleted with it.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Filename   string                 `json:"filename" db:"filename"`
	Content    string                 `json:"content" db:"content"`
	Status     string                 `json:"status" db:"status"`
	ChunkCount int                    `json:"chunk_count" db:"chunk_count"`
	Metadata   map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// DocumentChunk is a bounded span of a document's text, the unit of
// retrieval. Immutable once created; destroyed when its document is deleted.
type DocumentChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Content    string    `json:"content" db:"content"`
	Filename   string    `json:"filename" db:"filename"`
	CharOffset int       `json:"char_offset" db:"char_offset"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Filename string                 `json:"filename,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

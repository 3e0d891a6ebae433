package models

import "time"

// RFP statuses.
const (
	RFPStatusPending    = "pending"
	RFPStatusProcessing = "processing"
	RFPStatusCompleted  = "completed"
	RFPStatusFailed     = "failed"
)

// RFP is a set of questions to be answered against the knowledge base.
type RFP struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Question is a single question belonging to an RFP. Fingerprint is the
// normalized-text digest used as the answer cache key, computed at creation.
type Question struct {
	ID          string    `json:"id" db:"id"`
	RFPID       string    `json:"rfp_id" db:"rfp_id"`
	Number      int       `json:"number" db:"number"`
	Text        string    `json:"text" db:"text"`
	Context     string    `json:"context,omitempty" db:"context"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Answer is a generated answer to a question. Mutated only by regeneration,
// which replaces text/sources/confidence and increments RegeneratedCount.
// SourceChunkIDs preserves retrieval order; referenced chunks may be deleted
// later, leaving dangling IDs, and the answer keeps its text regardless.
type Answer struct {
	ID               string                 `json:"id" db:"id"`
	QuestionID       string                 `json:"question_id" db:"question_id"`
	Text             string                 `json:"text" db:"text"`
	SourceChunkIDs   []string               `json:"source_chunk_ids" db:"source_chunk_ids"`
	Confidence       *float64               `json:"confidence,omitempty" db:"confidence"`
	GeneratedAt      time.Time              `json:"generated_at" db:"generated_at"`
	RegeneratedCount int                    `json:"regenerated_count" db:"regenerated_count"`
	Cached           bool                   `json:"cached" db:"cached"`
	Fingerprint      string                 `json:"fingerprint" db:"fingerprint"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// QuestionError records a per-question failure during batch generation.
type QuestionError struct {
	QuestionID string `json:"question_id"`
	Number     int    `json:"number"`
	Error      string `json:"error"`
}

// BatchSummary is the result of generating answers for all questions in an
// RFP. Errors are ordered by question number; one question failing does not
// abort the rest of the batch.
type BatchSummary struct {
	RFPID          string          `json:"rfp_id"`
	TotalQuestions int             `json:"total_questions"`
	GeneratedCount int             `json:"generated_count"`
	CachedCount    int             `json:"cached_count"`
	SkippedCount   int             `json:"skipped_count"`
	Errors         []QuestionError `json:"errors,omitempty"`
}

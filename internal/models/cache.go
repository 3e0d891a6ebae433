package models

import "time"

// CacheEntry is a stored answer keyed by question fingerprint. Entries do not
// expire; they are replaced on store and removed only by explicit
// invalidation.
type CacheEntry struct {
	Fingerprint    string    `json:"fingerprint" db:"fingerprint"`
	AnswerText     string    `json:"answer_text" db:"answer_text"`
	SourceChunkIDs []string  `json:"source_chunk_ids" db:"source_chunk_ids"`
	Confidence     *float64  `json:"confidence,omitempty" db:"confidence"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	HitCount       int64     `json:"hit_count" db:"hit_count"`
}

// CacheStats reports answer cache usage.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
}

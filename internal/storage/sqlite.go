// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT,
		content TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		filename TEXT,
		char_offset INTEGER NOT NULL DEFAULT 0,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON document_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON document_chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS rfps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		rfp_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		text TEXT NOT NULL,
		context TEXT,
		fingerprint TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (rfp_id) REFERENCES rfps(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_questions_rfp_id ON questions(rfp_id);
	CREATE INDEX IF NOT EXISTS idx_questions_fingerprint ON questions(fingerprint);

	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		source_chunk_ids TEXT,
		confidence REAL,
		generated_at TIMESTAMP,
		regenerated_count INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		fingerprint TEXT NOT NULL,
		metadata TEXT,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_answers_fingerprint ON answers(fingerprint);

	CREATE TABLE IF NOT EXISTS answer_cache (
		fingerprint TEXT PRIMARY KEY,
		answer_text TEXT NOT NULL,
		source_chunk_ids TEXT,
		confidence REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		hit_count INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, content, status, chunk_count, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Content, doc.Status, doc.ChunkCount, string(metadataJSON), doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	var metadataJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content, status, chunk_count, metadata, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.Status, &doc.ChunkCount, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// UpdateDocument updates an existing document.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	doc.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET filename = ?, content = ?, status = ?, chunk_count = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		doc.Filename, doc.Content, doc.Status, doc.ChunkCount, string(metadataJSON), doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document by ID. Chunks cascade.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content, status, chunk_count, metadata, created_at, updated_at
		 FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var metadataJSON string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.Status, &doc.ChunkCount, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		if metadataJSON != "" {
			_ = json.Unmarshal([]byte(metadataJSON), &doc.Metadata)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// BatchCreateChunks inserts chunks in a transaction, embeddings included.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_id, chunk_index, content, filename, char_offset, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		chunk.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content,
			chunk.Filename, chunk.CharOffset, encodeVector(chunk.Embedding), chunk.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, chunk_index, content, filename, char_offset, embedding, created_at
		 FROM document_chunks WHERE id = ?`, id,
	)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	return chunk, err
}

// GetChunksByIDs returns the chunks for the given IDs in the order requested.
// IDs with no matching chunk are silently skipped.
func (s *SQLiteStorage) GetChunksByIDs(ctx context.Context, ids []string) ([]*models.DocumentChunk, error) {
	byID := make(map[string]*models.DocumentChunk, len(ids))
	for _, id := range ids {
		chunk, err := s.GetChunk(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		byID[id] = chunk
	}
	chunks := make([]*models.DocumentChunk, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, filename, char_offset, embedding, created_at
		 FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, docID)
	return err
}

// AllChunks returns every chunk, ordered by creation then index. Used for
// index rebuilds.
func (s *SQLiteStorage) AllChunks(ctx context.Context) ([]*models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, filename, char_offset, embedding, created_at
		 FROM document_chunks ORDER BY created_at, document_id, chunk_index`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// CreateRFP inserts an RFP.
func (s *SQLiteStorage) CreateRFP(ctx context.Context, rfp *models.RFP) error {
	rfp.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rfps (id, name, description, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		rfp.ID, rfp.Name, rfp.Description, rfp.Status, rfp.CreatedAt,
	)
	return err
}

// GetRFP returns an RFP by ID.
func (s *SQLiteStorage) GetRFP(ctx context.Context, id string) (*models.RFP, error) {
	var rfp models.RFP
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, created_at FROM rfps WHERE id = ?`, id,
	).Scan(&rfp.ID, &rfp.Name, &rfp.Description, &rfp.Status, &rfp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rfp %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rfp, nil
}

// ListRFPs returns RFPs with offset and limit, newest first.
func (s *SQLiteStorage) ListRFPs(ctx context.Context, offset, limit int) ([]*models.RFP, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, status, created_at
		 FROM rfps ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rfps []*models.RFP
	for rows.Next() {
		var rfp models.RFP
		if err := rows.Scan(&rfp.ID, &rfp.Name, &rfp.Description, &rfp.Status, &rfp.CreatedAt); err != nil {
			return nil, err
		}
		rfps = append(rfps, &rfp)
	}
	return rfps, rows.Err()
}

// UpdateRFPStatus sets the status of an RFP.
func (s *SQLiteStorage) UpdateRFPStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE rfps SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rfp %s: %w", id, ErrNotFound)
	}
	return nil
}

// BatchCreateQuestions inserts questions in a transaction.
func (s *SQLiteStorage) BatchCreateQuestions(ctx context.Context, questions []*models.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (id, rfp_id, number, text, context, fingerprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, q := range questions {
		q.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, q.ID, q.RFPID, q.Number, q.Text, q.Context, q.Fingerprint, q.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetQuestion returns a question by ID.
func (s *SQLiteStorage) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	err := s.db.QueryRowContext(ctx,
		`SELECT id, rfp_id, number, text, context, fingerprint, created_at
		 FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.RFPID, &q.Number, &q.Text, &q.Context, &q.Fingerprint, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuestionsByRFP returns all questions for an RFP ordered by number.
func (s *SQLiteStorage) GetQuestionsByRFP(ctx context.Context, rfpID string) ([]*models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rfp_id, number, text, context, fingerprint, created_at
		 FROM questions WHERE rfp_id = ? ORDER BY number`,
		rfpID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.RFPID, &q.Number, &q.Text, &q.Context, &q.Fingerprint, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

// UpsertAnswer inserts or replaces the answer for a question.
func (s *SQLiteStorage) UpsertAnswer(ctx context.Context, ans *models.Answer) error {
	sourcesJSON, err := json.Marshal(ans.SourceChunkIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source chunk ids: %w", err)
	}
	metadataJSON, err := json.Marshal(ans.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answers (id, question_id, text, source_chunk_ids, confidence, generated_at, regenerated_count, cached, fingerprint, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(question_id) DO UPDATE SET
			text = excluded.text,
			source_chunk_ids = excluded.source_chunk_ids,
			confidence = excluded.confidence,
			generated_at = excluded.generated_at,
			regenerated_count = excluded.regenerated_count,
			cached = excluded.cached,
			fingerprint = excluded.fingerprint,
			metadata = excluded.metadata`,
		ans.ID, ans.QuestionID, ans.Text, string(sourcesJSON), ans.Confidence,
		ans.GeneratedAt, ans.RegeneratedCount, ans.Cached, ans.Fingerprint, string(metadataJSON),
	)
	return err
}

// GetAnswerByQuestionID returns the answer for a question, if any.
func (s *SQLiteStorage) GetAnswerByQuestionID(ctx context.Context, questionID string) (*models.Answer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question_id, text, source_chunk_ids, confidence, generated_at, regenerated_count, cached, fingerprint, metadata
		 FROM answers WHERE question_id = ?`, questionID,
	)
	ans, err := scanAnswer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("answer for question %s: %w", questionID, ErrNotFound)
	}
	return ans, err
}

// GetAnswersByRFP returns all answers for an RFP's questions, ordered by
// question number.
func (s *SQLiteStorage) GetAnswersByRFP(ctx context.Context, rfpID string) ([]*models.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.question_id, a.text, a.source_chunk_ids, a.confidence, a.generated_at, a.regenerated_count, a.cached, a.fingerprint, a.metadata
		 FROM answers a JOIN questions q ON q.id = a.question_id
		 WHERE q.rfp_id = ? ORDER BY q.number`,
		rfpID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []*models.Answer
	for rows.Next() {
		ans, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, ans)
	}
	return answers, rows.Err()
}

// UpsertCacheEntry inserts or replaces a cache entry (last write wins).
func (s *SQLiteStorage) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	sourcesJSON, err := json.Marshal(entry.SourceChunkIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source chunk ids: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answer_cache (fingerprint, answer_text, source_chunk_ids, confidence, created_at, hit_count)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			answer_text = excluded.answer_text,
			source_chunk_ids = excluded.source_chunk_ids,
			confidence = excluded.confidence,
			created_at = excluded.created_at`,
		entry.Fingerprint, entry.AnswerText, string(sourcesJSON), entry.Confidence, entry.CreatedAt, entry.HitCount,
	)
	return err
}

// GetCacheEntry returns the cache entry for a fingerprint.
func (s *SQLiteStorage) GetCacheEntry(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, answer_text, source_chunk_ids, confidence, created_at, hit_count
		 FROM answer_cache WHERE fingerprint = ?`, fingerprint,
	)
	entry, err := scanCacheEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cache entry %s: %w", fingerprint, ErrNotFound)
	}
	return entry, err
}

// ListCacheEntries returns all cache entries.
func (s *SQLiteStorage) ListCacheEntries(ctx context.Context) ([]*models.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, answer_text, source_chunk_ids, confidence, created_at, hit_count
		 FROM answer_cache`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.CacheEntry
	for rows.Next() {
		entry, err := scanCacheEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteCacheEntries removes cache entries by fingerprint.
func (s *SQLiteStorage) DeleteCacheEntries(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM answer_cache WHERE fingerprint = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, fp := range fingerprints {
		if _, err := stmt.ExecContext(ctx, fp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// IncrementCacheHit bumps the hit counter for a fingerprint.
func (s *SQLiteStorage) IncrementCacheHit(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE answer_cache SET hit_count = hit_count + 1 WHERE fingerprint = ?`, fingerprint,
	)
	return err
}

// CacheStats returns entry and hit totals for the answer cache.
func (s *SQLiteStorage) CacheStats(ctx context.Context) (*models.CacheStats, error) {
	var stats models.CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM answer_cache`,
	).Scan(&stats.Entries, &stats.Hits)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

// CountAnswers returns the total number of answers.
func (s *SQLiteStorage) CountAnswers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*models.DocumentChunk, error) {
	var chunk models.DocumentChunk
	var embedding []byte
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
		&chunk.Filename, &chunk.CharOffset, &embedding, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	chunk.Embedding = decodeVector(embedding)
	return &chunk, nil
}

func scanChunks(rows *sql.Rows) ([]*models.DocumentChunk, error) {
	var chunks []*models.DocumentChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func scanAnswer(row rowScanner) (*models.Answer, error) {
	var ans models.Answer
	var sourcesJSON, metadataJSON sql.NullString
	var generatedAt sql.NullTime
	if err := row.Scan(&ans.ID, &ans.QuestionID, &ans.Text, &sourcesJSON, &ans.Confidence,
		&generatedAt, &ans.RegeneratedCount, &ans.Cached, &ans.Fingerprint, &metadataJSON); err != nil {
		return nil, err
	}
	if generatedAt.Valid {
		ans.GeneratedAt = generatedAt.Time
	}
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		_ = json.Unmarshal([]byte(sourcesJSON.String), &ans.SourceChunkIDs)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &ans.Metadata)
	}
	return &ans, nil
}

func scanCacheEntry(row rowScanner) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	var sourcesJSON sql.NullString
	if err := row.Scan(&entry.Fingerprint, &entry.AnswerText, &sourcesJSON,
		&entry.Confidence, &entry.CreatedAt, &entry.HitCount); err != nil {
		return nil, err
	}
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		_ = json.Unmarshal([]byte(sourcesJSON.String), &entry.SourceChunkIDs)
	}
	return &entry, nil
}

// encodeVector packs a float32 slice into little-endian bytes for BLOB storage.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 slice.
func decodeVector(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

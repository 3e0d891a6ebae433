package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// QuestionInput is one question of an incoming RFP. Number is assigned
// sequentially when zero.
type QuestionInput struct {
	Number  int    `json:"number,omitempty"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// CreateRFP stores an RFP and its questions. Each question gets a
// fingerprint computed from its normalized text at creation time.
func (p *Pipeline) CreateRFP(ctx context.Context, name, description string, inputs []QuestionInput) (*models.RFP, []*models.Question, error) {
	if name == "" {
		return nil, nil, errors.New("rfp name is required")
	}
	if len(inputs) == 0 {
		return nil, nil, errors.New("rfp has no questions")
	}

	rfp := &models.RFP{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      models.RFPStatusPending,
	}
	if err := p.store.CreateRFP(ctx, rfp); err != nil {
		return nil, nil, fmt.Errorf("failed to store rfp: %w", err)
	}

	questions := make([]*models.Question, len(inputs))
	for i, in := range inputs {
		if in.Text == "" {
			return nil, nil, fmt.Errorf("question %d has no text", i+1)
		}
		number := in.Number
		if number == 0 {
			number = i + 1
		}
		questions[i] = &models.Question{
			ID:          uuid.New().String(),
			RFPID:       rfp.ID,
			Number:      number,
			Text:        in.Text,
			Context:     in.Context,
			Fingerprint: cache.Fingerprint(in.Text),
		}
	}
	if err := p.store.BatchCreateQuestions(ctx, questions); err != nil {
		return nil, nil, fmt.Errorf("failed to store questions: %w", err)
	}

	p.logger.Info("rfp created",
		zap.String("rfp_id", rfp.ID),
		zap.String("name", name),
		zap.Int("questions", len(questions)))
	return rfp, questions, nil
}

// AnswerQuestion produces and persists the answer for a question. The cache
// is consulted first; a hit skips retrieval and generation entirely. The
// answer row is written either way, so the RFP's answer set is complete.
func (p *Pipeline) AnswerQuestion(ctx context.Context, q *models.Question) (*models.Answer, error) {
	fingerprint := q.Fingerprint
	if fingerprint == "" {
		fingerprint = cache.Fingerprint(q.Text)
	}

	if entry, ok := p.cache.Lookup(ctx, fingerprint); ok {
		ans := &models.Answer{
			ID:             uuid.New().String(),
			QuestionID:     q.ID,
			Text:           entry.AnswerText,
			SourceChunkIDs: entry.SourceChunkIDs,
			Confidence:     entry.Confidence,
			GeneratedAt:    time.Now(),
			Cached:         true,
			Fingerprint:    fingerprint,
		}
		if err := p.store.UpsertAnswer(ctx, ans); err != nil {
			return nil, fmt.Errorf("failed to store answer: %w", err)
		}
		p.logger.Debug("answer served from cache",
			zap.String("question_id", q.ID),
			zap.String("fingerprint", fingerprint))
		return ans, nil
	}

	return p.generateAnswer(ctx, q, fingerprint, 0)
}

// RegenerateAnswer regenerates the answer for a question, bypassing the
// cache lookup. On success the previous answer is replaced and its
// regenerated count incremented; on failure the previous answer is left
// untouched. The cache entry for the fingerprint is refreshed with the new
// answer.
func (p *Pipeline) RegenerateAnswer(ctx context.Context, questionID string) (*models.Answer, error) {
	q, err := p.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	fingerprint := q.Fingerprint
	if fingerprint == "" {
		fingerprint = cache.Fingerprint(q.Text)
	}

	regenerated := 0
	if prev, err := p.store.GetAnswerByQuestionID(ctx, questionID); err == nil {
		regenerated = prev.RegeneratedCount + 1
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	return p.generateAnswer(ctx, q, fingerprint, regenerated)
}

// generateAnswer runs retrieve-generate-persist for a question and writes
// the result through to the cache.
func (p *Pipeline) generateAnswer(ctx context.Context, q *models.Question, fingerprint string, regenerated int) (*models.Answer, error) {
	if p.generator == nil {
		return nil, errors.New("answer generation is not configured (no API key)")
	}
	results, err := p.retriever.Retrieve(ctx, q.Text, 0, -1)
	if err != nil {
		return nil, err
	}
	chunks := make([]*models.DocumentChunk, len(results))
	chunkIDs := make([]string, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
		chunkIDs[i] = r.Chunk.ID
	}

	if err := p.waitForSlot(ctx); err != nil {
		return nil, err
	}
	generated, err := p.generator.Generate(ctx, q.Text, q.Context, chunks)
	if err != nil {
		return nil, err
	}
	// Attribute only the chunks that made it into the prompt; the context
	// budget can cut the retrieved list short.
	if generated.ChunksUsed < len(chunkIDs) {
		chunkIDs = chunkIDs[:generated.ChunksUsed]
	}

	ans := &models.Answer{
		ID:               uuid.New().String(),
		QuestionID:       q.ID,
		Text:             generated.Text,
		SourceChunkIDs:   chunkIDs,
		Confidence:       generated.Confidence,
		GeneratedAt:      time.Now(),
		RegeneratedCount: regenerated,
		Cached:           false,
		Fingerprint:      fingerprint,
		Metadata: map[string]interface{}{
			"model":       generated.Model,
			"chunks_used": generated.ChunksUsed,
		},
	}
	if err := p.store.UpsertAnswer(ctx, ans); err != nil {
		return nil, fmt.Errorf("failed to store answer: %w", err)
	}

	// Cache write-through is an optimization; a failure degrades to a miss
	// next time, so log and continue.
	if err := p.cache.Store(ctx, &models.CacheEntry{
		Fingerprint:    fingerprint,
		AnswerText:     generated.Text,
		SourceChunkIDs: chunkIDs,
		Confidence:     generated.Confidence,
	}); err != nil {
		p.logger.Warn("failed to cache answer",
			zap.String("fingerprint", fingerprint), zap.Error(err))
	}

	p.logger.Info("answer generated",
		zap.String("question_id", q.ID),
		zap.Int("chunks", len(chunkIDs)),
		zap.Int("regenerated_count", regenerated))
	return ans, nil
}

// GenerateAnswers answers every unanswered question of an RFP sequentially,
// in question-number order. Questions that already have answers are skipped;
// one question failing does not abort the rest. The RFP status reflects the
// outcome: completed when at least one question has an answer afterwards,
// failed when every attempted question errored.
func (p *Pipeline) GenerateAnswers(ctx context.Context, rfpID string) (*models.BatchSummary, error) {
	rfp, err := p.store.GetRFP(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	questions, err := p.store.GetQuestionsByRFP(ctx, rfpID)
	if err != nil {
		return nil, err
	}

	if err := p.store.UpdateRFPStatus(ctx, rfp.ID, models.RFPStatusProcessing); err != nil {
		return nil, err
	}

	summary := &models.BatchSummary{
		RFPID:          rfpID,
		TotalQuestions: len(questions),
	}
	for _, q := range questions {
		if _, err := p.store.GetAnswerByQuestionID(ctx, q.ID); err == nil {
			summary.SkippedCount++
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		ans, err := p.AnswerQuestion(ctx, q)
		if err != nil {
			p.logger.Warn("failed to answer question",
				zap.String("question_id", q.ID),
				zap.Int("number", q.Number),
				zap.Error(err))
			summary.Errors = append(summary.Errors, models.QuestionError{
				QuestionID: q.ID,
				Number:     q.Number,
				Error:      err.Error(),
			})
			continue
		}
		if ans.Cached {
			summary.CachedCount++
		} else {
			summary.GeneratedCount++
		}
	}

	status := models.RFPStatusCompleted
	if len(questions) > 0 && len(summary.Errors) == len(questions) {
		status = models.RFPStatusFailed
	}
	if err := p.store.UpdateRFPStatus(ctx, rfp.ID, status); err != nil {
		return nil, err
	}

	p.logger.Info("rfp batch finished",
		zap.String("rfp_id", rfpID),
		zap.Int("total", summary.TotalQuestions),
		zap.Int("generated", summary.GeneratedCount),
		zap.Int("cached", summary.CachedCount),
		zap.Int("skipped", summary.SkippedCount),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

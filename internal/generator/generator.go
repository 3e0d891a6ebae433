// Package generator produces grounded answers from retrieved chunks via an
// LLM.
package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Request is a single completion call to an LLM.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// LLM is the completion backend. Implementations return *Error with
// Retryable set appropriately on failure.
type LLM interface {
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}

// Error is a generation failure. Retryable marks transient conditions (rate
// limits, upstream 5xx, network) where the same request may later succeed;
// non-retryable errors (bad request, auth) will not.
type Error struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation: %s: %v", e.Reason, e.Err)
	}
	return "generation: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Result is a generated answer with its parsed confidence. Confidence is nil
// when the model omitted or mangled the marker.
type Result struct {
	Text       string
	Confidence *float64
	Model      string
	ChunksUsed int
}

// Generator builds prompts from retrieved chunks and parses LLM output.
type Generator struct {
	llm             LLM
	maxTokens       int
	temperature     float64
	maxContextUnits int
	logger          *zap.Logger
}

// New creates a Generator. maxContextUnits bounds the total context text
// included in a prompt.
func New(llm LLM, maxTokens int, temperature float64, maxContextUnits int, logger *zap.Logger) *Generator {
	return &Generator{
		llm:             llm,
		maxTokens:       maxTokens,
		temperature:     temperature,
		maxContextUnits: maxContextUnits,
		logger:          logger,
	}
}

// Generate answers the question from the given chunks. The chunks should be
// in retrieval order; the prompt numbers them in that order. An empty chunk
// slice is allowed: the model then answers from general knowledge, flagged
// as ungrounded and low-confidence.
func (g *Generator) Generate(ctx context.Context, question, questionContext string, chunks []*models.DocumentChunk) (*Result, error) {
	prompt, used := BuildPrompt(question, questionContext, chunks, g.maxContextUnits)
	system := SystemPrompt
	if used == 0 {
		system = FallbackSystemPrompt
	}

	raw, err := g.llm.Complete(ctx, Request{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, &Error{Reason: "model returned empty completion", Retryable: true}
	}

	text, confidence := ParseConfidence(raw)
	if confidence == nil {
		g.logger.Debug("completion missing confidence marker")
	}
	return &Result{
		Text:       text,
		Confidence: confidence,
		Model:      g.llm.Model(),
		ChunksUsed: used,
	}, nil
}

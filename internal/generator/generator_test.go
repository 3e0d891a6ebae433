package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// fakeLLM returns a canned completion and records the last request.
type fakeLLM struct {
	response string
	err      error
	lastReq  Request
}

func (f *fakeLLM) Complete(_ context.Context, req Request) (string, error) {
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

func chunk(id, content string) *models.DocumentChunk {
	return &models.DocumentChunk{ID: id, Content: content}
}

func TestGenerateParsesConfidence(t *testing.T) {
	llm := &fakeLLM{response: "We encrypt data with AES-256.\n\nCONFIDENCE: 0.9"}
	g := New(llm, 2000, 0.3, 8000, zap.NewNop())

	result, err := g.Generate(context.Background(), "Is data encrypted?", "", []*models.DocumentChunk{
		chunk("c1", "All data is encrypted at rest with AES-256."),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "We encrypt data with AES-256." {
		t.Errorf("text = %q", result.Text)
	}
	if result.Confidence == nil || *result.Confidence != 0.9 {
		t.Errorf("confidence = %v", result.Confidence)
	}
	if result.Model != "fake-model" || result.ChunksUsed != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestGeneratePromptShape(t *testing.T) {
	llm := &fakeLLM{response: "answer\nCONFIDENCE: 0.5"}
	g := New(llm, 2000, 0.3, 8000, zap.NewNop())

	_, err := g.Generate(context.Background(), "What is your SLA?", "Section 4 of the RFP", []*models.DocumentChunk{
		chunk("c1", "Our SLA is 99.9% uptime."),
		chunk("c2", "Support responds within 4 hours."),
	})
	if err != nil {
		t.Fatal(err)
	}

	prompt := llm.lastReq.Prompt
	if !strings.Contains(prompt, "[Document Chunk 1]\nOur SLA is 99.9% uptime.") {
		t.Errorf("first chunk not numbered: %q", prompt)
	}
	if !strings.Contains(prompt, "[Document Chunk 2]") {
		t.Errorf("second chunk not numbered: %q", prompt)
	}
	if !strings.Contains(prompt, "Question: What is your SLA?") {
		t.Errorf("question missing: %q", prompt)
	}
	if !strings.Contains(prompt, "Additional question context: Section 4 of the RFP") {
		t.Errorf("question context missing: %q", prompt)
	}
	if !strings.Contains(prompt, "CONFIDENCE: X.X") {
		t.Errorf("confidence instruction missing: %q", prompt)
	}
	if llm.lastReq.System != SystemPrompt {
		t.Error("system prompt not set")
	}
	if llm.lastReq.MaxTokens != 2000 || llm.lastReq.Temperature != 0.3 {
		t.Errorf("tunables not threaded: %+v", llm.lastReq)
	}
}

func TestGenerateNoChunks(t *testing.T) {
	llm := &fakeLLM{response: "The knowledge base has no material on this.\nCONFIDENCE: 0.1"}
	g := New(llm, 2000, 0.3, 8000, zap.NewNop())

	result, err := g.Generate(context.Background(), "q", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.ChunksUsed != 0 {
		t.Errorf("ChunksUsed = %d", result.ChunksUsed)
	}
	if !strings.Contains(llm.lastReq.Prompt, "No relevant document context") {
		t.Errorf("prompt should state the empty context: %q", llm.lastReq.Prompt)
	}
	// Without context the model must be told to answer anyway, from general
	// knowledge, rather than refuse for lack of grounding.
	if !strings.Contains(llm.lastReq.Prompt, "general knowledge") {
		t.Errorf("prompt should instruct a general-knowledge answer: %q", llm.lastReq.Prompt)
	}
	if llm.lastReq.System != FallbackSystemPrompt {
		t.Errorf("system = %q, want fallback system prompt", llm.lastReq.System)
	}
	if strings.Contains(llm.lastReq.System, "only the provided document context") {
		t.Error("fallback system prompt still forbids general-knowledge answers")
	}
}

func TestGenerateContextBudget(t *testing.T) {
	llm := &fakeLLM{response: "answer"}
	g := New(llm, 2000, 0.3, 20, zap.NewNop())

	result, err := g.Generate(context.Background(), "q", "", []*models.DocumentChunk{
		chunk("c1", strings.Repeat("word ", 15)), // 15 words, fits
		chunk("c2", strings.Repeat("word ", 10)), // 10 words, over the remaining 5
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ChunksUsed != 1 {
		t.Errorf("ChunksUsed = %d, want 1 after budget cutoff", result.ChunksUsed)
	}
	if strings.Contains(llm.lastReq.Prompt, "[Document Chunk 2]") {
		t.Error("over-budget chunk included in prompt")
	}
	if llm.lastReq.System != SystemPrompt {
		t.Error("grounded prompt should use the standard system prompt")
	}
}

func TestGenerateContextBudgetIsInWords(t *testing.T) {
	// Default-sized chunks against the default budget: five 800-word chunks
	// fit in 8000 units because the budget is counted in words, not bytes.
	llm := &fakeLLM{response: "answer"}
	g := New(llm, 2000, 0.3, 8000, zap.NewNop())

	chunks := make([]*models.DocumentChunk, 5)
	for i := range chunks {
		chunks[i] = chunk("c", strings.Repeat("sizeable ", 800))
	}
	result, err := g.Generate(context.Background(), "q", "", chunks)
	if err != nil {
		t.Fatal(err)
	}
	if result.ChunksUsed != 5 {
		t.Errorf("ChunksUsed = %d, want all 5 within the word budget", result.ChunksUsed)
	}
}

func TestGenerateBudgetStaysExhausted(t *testing.T) {
	// Once the budget is spent, later chunks must not slip back in.
	llm := &fakeLLM{response: "answer"}
	g := New(llm, 2000, 0.3, 4, zap.NewNop())

	result, err := g.Generate(context.Background(), "q", "", []*models.DocumentChunk{
		chunk("c1", "one two three four"), // exactly exhausts the budget
		chunk("c2", strings.Repeat("word ", 100)),
		chunk("c3", strings.Repeat("word ", 100)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ChunksUsed != 1 {
		t.Errorf("ChunksUsed = %d, want 1 with the budget exhausted", result.ChunksUsed)
	}
}

func TestBuildPromptUnlimitedBudget(t *testing.T) {
	prompt, used := BuildPrompt("q", "", []*models.DocumentChunk{
		chunk("c1", strings.Repeat("word ", 500)),
		chunk("c2", strings.Repeat("word ", 500)),
	}, 0)
	if used != 2 {
		t.Errorf("used = %d, want 2 with no budget", used)
	}
	if !strings.Contains(prompt, "[Document Chunk 2]") {
		t.Error("second chunk missing from unbounded prompt")
	}
}

func TestGenerateErrorPassthrough(t *testing.T) {
	llm := &fakeLLM{err: &Error{Reason: "rate limited", Retryable: true}}
	g := New(llm, 2000, 0.3, 8000, zap.NewNop())

	_, err := g.Generate(context.Background(), "q", "", nil)
	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !genErr.Retryable {
		t.Error("retryable flag lost")
	}
}

func TestGenerateEmptyCompletion(t *testing.T) {
	llm := &fakeLLM{response: ""}
	g := New(llm, 2000, 0.3, 8000, zap.NewNop())

	_, err := g.Generate(context.Background(), "q", "", nil)
	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !genErr.Retryable {
		t.Error("empty completion should be retryable")
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantText string
		wantConf *float64
	}{
		{"trailing marker", "Answer here.\nCONFIDENCE: 0.8", "Answer here.", ptr(0.8)},
		{"no marker", "Just an answer.", "Just an answer.", nil},
		{"clamped high", "A.\nCONFIDENCE: 1.5", "A.", ptr(1.0)},
		{"lowercase", "A.\nconfidence: 0.4", "A.", ptr(0.4)},
		{"integer", "A.\nCONFIDENCE: 1", "A.", ptr(1.0)},
		{"mid-text marker ignored", "CONFIDENCE mentioned inline stays.", "CONFIDENCE mentioned inline stays.", nil},
		{"marker with spaces", "A.\n  CONFIDENCE:   0.25  ", "A.", ptr(0.25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, conf := ParseConfidence(tt.in)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			switch {
			case tt.wantConf == nil && conf != nil:
				t.Errorf("conf = %v, want nil", *conf)
			case tt.wantConf != nil && conf == nil:
				t.Errorf("conf = nil, want %v", *tt.wantConf)
			case tt.wantConf != nil && conf != nil && *conf != *tt.wantConf:
				t.Errorf("conf = %v, want %v", *conf, *tt.wantConf)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }

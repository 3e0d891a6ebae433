package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func createRFP(t *testing.T, p *Pipeline, name string, texts ...string) (*models.RFP, []*models.Question) {
	t.Helper()
	inputs := make([]QuestionInput, len(texts))
	for i, text := range texts {
		inputs[i] = QuestionInput{Text: text}
	}
	rfp, questions, err := p.CreateRFP(context.Background(), name, "", inputs)
	if err != nil {
		t.Fatal(err)
	}
	return rfp, questions
}

func TestCreateRFPAssignsNumbersAndFingerprints(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptLLM{response: "ok"})
	_, questions := createRFP(t, p, "Acme", "Is data encrypted?", "What is your SLA?")

	if questions[0].Number != 1 || questions[1].Number != 2 {
		t.Errorf("numbers = %d, %d", questions[0].Number, questions[1].Number)
	}
	for _, q := range questions {
		if q.Fingerprint == "" {
			t.Errorf("question %d has no fingerprint", q.Number)
		}
	}
	if questions[0].Fingerprint == questions[1].Fingerprint {
		t.Error("distinct questions share a fingerprint")
	}
}

func TestCreateRFPValidation(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptLLM{response: "ok"})
	ctx := context.Background()

	if _, _, err := p.CreateRFP(ctx, "", "", []QuestionInput{{Text: "q"}}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, _, err := p.CreateRFP(ctx, "name", "", nil); err == nil {
		t.Error("expected error for no questions")
	}
	if _, _, err := p.CreateRFP(ctx, "name", "", []QuestionInput{{Text: ""}}); err == nil {
		t.Error("expected error for empty question text")
	}
}

func TestGenerateAnswersBatch(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "We comply."}
	p, store := newTestPipeline(t, llm)
	ingestDoc(t, p, "d1", "Our compliance posture covers SOC 2 and ISO 27001.")

	rfp, _ := createRFP(t, p, "Acme", "Are you SOC 2 compliant?", "Do you hold ISO 27001?")

	summary, err := p.GenerateAnswers(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalQuestions != 2 || summary.GeneratedCount != 2 || summary.CachedCount != 0 || summary.SkippedCount != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Errors) != 0 {
		t.Errorf("errors = %+v", summary.Errors)
	}
	if llm.calls != 2 {
		t.Errorf("llm calls = %d, want 2", llm.calls)
	}

	updated, err := store.GetRFP(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.RFPStatusCompleted {
		t.Errorf("rfp status = %s", updated.Status)
	}

	answers, err := store.GetAnswersByRFP(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 2 {
		t.Fatalf("answers = %d", len(answers))
	}
	for i, ans := range answers {
		if ans.Cached {
			t.Errorf("answer %d marked cached on first generation", i)
		}
		if ans.Confidence == nil || *ans.Confidence != 0.7 {
			t.Errorf("answer %d confidence = %v", i, ans.Confidence)
		}
		if len(ans.SourceChunkIDs) == 0 {
			t.Errorf("answer %d has no sources", i)
		}
	}
}

func TestGenerateAnswersRerunSkips(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "answer"}
	p, _ := newTestPipeline(t, llm)

	rfp, _ := createRFP(t, p, "Acme", "Question one?", "Question two?")
	if _, err := p.GenerateAnswers(ctx, rfp.ID); err != nil {
		t.Fatal(err)
	}

	summary, err := p.GenerateAnswers(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.SkippedCount != 2 || summary.GeneratedCount != 0 || summary.CachedCount != 0 {
		t.Errorf("rerun summary = %+v", summary)
	}
	if llm.calls != 2 {
		t.Errorf("llm calls = %d, rerun should not call the model", llm.calls)
	}
}

func TestCacheHitAcrossRFPs(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "cached across rfps"}
	p, store := newTestPipeline(t, llm)

	first, _ := createRFP(t, p, "First", "Is data encrypted at rest?")
	if _, err := p.GenerateAnswers(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	// Same question, different phrasing details that normalize away.
	second, _ := createRFP(t, p, "Second", "is data ENCRYPTED at rest")
	summary, err := p.GenerateAnswers(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.CachedCount != 1 || summary.GeneratedCount != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, cache hit must not call the model", llm.calls)
	}

	answers, err := store.GetAnswersByRFP(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 1 || !answers[0].Cached {
		t.Errorf("answers = %+v", answers)
	}
	if !strings.Contains(answers[0].Text, "cached across rfps") {
		t.Errorf("cached answer text = %q", answers[0].Text)
	}
}

func TestBatchContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "ok", failOn: map[int]bool{1: true}}
	p, store := newTestPipeline(t, llm)

	rfp, questions := createRFP(t, p, "Acme", "First question?", "Second question?")
	summary, err := p.GenerateAnswers(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.GeneratedCount != 1 {
		t.Errorf("generated = %d, want 1", summary.GeneratedCount)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].Number != 1 {
		t.Errorf("errors = %+v", summary.Errors)
	}
	if summary.Errors[0].QuestionID != questions[0].ID {
		t.Errorf("error question id = %s", summary.Errors[0].QuestionID)
	}

	updated, err := store.GetRFP(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.RFPStatusCompleted {
		t.Errorf("partial success should complete, status = %s", updated.Status)
	}
}

func TestBatchAllFailuresMarksRFPFailed(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "ok", failOn: map[int]bool{1: true, 2: true}}
	p, store := newTestPipeline(t, llm)

	rfp, _ := createRFP(t, p, "Acme", "Only question?", "Other question?")
	summary, err := p.GenerateAnswers(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Errors) != 2 {
		t.Fatalf("errors = %+v", summary.Errors)
	}
	updated, err := store.GetRFP(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.RFPStatusFailed {
		t.Errorf("status = %s, want failed", updated.Status)
	}
}

func TestEmptyCorpusStillAnswers(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "No relevant material available."}
	p, store := newTestPipeline(t, llm)

	rfp, questions := createRFP(t, p, "Acme", "Do you support on-prem deployment?")
	summary, err := p.GenerateAnswers(ctx, rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.GeneratedCount != 1 {
		t.Errorf("summary = %+v", summary)
	}

	ans, err := store.GetAnswerByQuestionID(ctx, questions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.SourceChunkIDs) != 0 {
		t.Errorf("sources = %v, want none on empty corpus", ans.SourceChunkIDs)
	}
}

func TestAnswerFoundingYearQuestion(t *testing.T) {
	ctx := context.Background()
	founding := "Hyperjump was founded in 2010 and is headquartered in Jakarta."
	pricing := "Enterprise pricing is available on request from the sales team."
	foundedQ := "When was your company founded?"
	cateringQ := "Do you offer on-site catering?"

	// Scripted vectors give the founding chunk a perfect score for the
	// founding question and leave everything else below the 0.3 threshold.
	emb := &scriptEmbedder{dims: 3, vectors: map[string][]float32{
		founding:  {1, 0, 0},
		pricing:   {0, 1, 0},
		foundedQ:  {1, 0, 0},
		cateringQ: {0.1, 0.1, 0.99},
	}}
	llm := &scriptLLM{response: "The company was founded in 2010."}
	p, _ := newTestPipelineWith(t, llm, emb, 0.3)

	ingestDoc(t, p, "dA", founding)
	ingestDoc(t, p, "dB", pricing)

	_, questions := createRFP(t, p, "Diligence", foundedQ, cateringQ)

	ans, err := p.AnswerQuestion(ctx, questions[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ans.Text, "founded in 2010") {
		t.Errorf("answer text = %q", ans.Text)
	}
	if len(ans.SourceChunkIDs) != 1 || ans.SourceChunkIDs[0] != "dA_0" {
		t.Errorf("sources = %v, want just the founding chunk", ans.SourceChunkIDs)
	}
	if ans.Confidence == nil || *ans.Confidence != 0.7 {
		t.Errorf("confidence = %v", ans.Confidence)
	}

	// Nothing in the corpus clears the threshold for this one; the answer
	// still comes back, just without sources.
	ans, err = p.AnswerQuestion(ctx, questions[1])
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.SourceChunkIDs) != 0 {
		t.Errorf("sources = %v, want none below threshold", ans.SourceChunkIDs)
	}
}

func TestRegenerateBypassesCache(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "regen target"}
	p, store := newTestPipeline(t, llm)

	rfp, questions := createRFP(t, p, "Acme", "Regenerate me?")
	if _, err := p.GenerateAnswers(ctx, rfp.ID); err != nil {
		t.Fatal(err)
	}
	if llm.calls != 1 {
		t.Fatalf("llm calls = %d", llm.calls)
	}

	ans, err := p.RegenerateAnswer(ctx, questions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 2 {
		t.Errorf("llm calls = %d, regeneration must bypass the cache", llm.calls)
	}
	if ans.RegeneratedCount != 1 || ans.Cached {
		t.Errorf("answer = %+v", ans)
	}

	ans, err = p.RegenerateAnswer(ctx, questions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if ans.RegeneratedCount != 2 {
		t.Errorf("regenerated count = %d, want 2", ans.RegeneratedCount)
	}

	// The stored answer row was replaced, not duplicated.
	stored, err := store.GetAnswerByQuestionID(ctx, questions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.RegeneratedCount != 2 {
		t.Errorf("stored count = %d", stored.RegeneratedCount)
	}
	n, err := store.CountAnswers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("answer rows = %d, want 1", n)
	}
}

func TestRegenerateRefreshesCache(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "refreshed"}
	p, _ := newTestPipeline(t, llm)

	rfp, questions := createRFP(t, p, "Acme", "Shared question?")
	if _, err := p.GenerateAnswers(ctx, rfp.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := p.RegenerateAnswer(ctx, questions[0].ID); err != nil {
		t.Fatal(err)
	}

	// A later equivalent question gets the regenerated text from cache.
	other, _ := createRFP(t, p, "Other", "Shared question?")
	summary, err := p.GenerateAnswers(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.CachedCount != 1 {
		t.Errorf("summary = %+v", summary)
	}
	answers, err := p.store.GetAnswersByRFP(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answers[0].Text, "call 2") {
		t.Errorf("cache not refreshed by regeneration: %q", answers[0].Text)
	}
}

func TestRegenerateFailurePreservesAnswer(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "original", failOn: map[int]bool{2: true}}
	p, store := newTestPipeline(t, llm)

	rfp, questions := createRFP(t, p, "Acme", "Fragile question?")
	if _, err := p.GenerateAnswers(ctx, rfp.ID); err != nil {
		t.Fatal(err)
	}
	before, err := store.GetAnswerByQuestionID(ctx, questions[0].ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.RegenerateAnswer(ctx, questions[0].ID); err == nil {
		t.Fatal("expected regeneration failure")
	}

	after, err := store.GetAnswerByQuestionID(ctx, questions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Text != before.Text || after.RegeneratedCount != before.RegeneratedCount {
		t.Errorf("failed regeneration mutated the answer: %+v vs %+v", after, before)
	}
}

func TestDeleteDocumentInvalidatesCachedAnswers(t *testing.T) {
	ctx := context.Background()
	llm := &scriptLLM{response: "grounded answer"}
	p, _ := newTestPipeline(t, llm)
	ingestDoc(t, p, "d1", "the knowledge that grounds the answer")

	rfp, _ := createRFP(t, p, "Acme", "What do the documents say?")
	if _, err := p.GenerateAnswers(ctx, rfp.ID); err != nil {
		t.Fatal(err)
	}
	if p.Cache().Size() != 1 {
		t.Fatalf("cache size = %d", p.Cache().Size())
	}

	if err := p.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if p.Cache().Size() != 0 {
		t.Errorf("cache size = %d, entries citing deleted chunks must go", p.Cache().Size())
	}

	// An equivalent question now regenerates instead of serving stale text.
	other, _ := createRFP(t, p, "Other", "What do the documents say?")
	summary, err := p.GenerateAnswers(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.CachedCount != 0 || summary.GeneratedCount != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

// Package cli provides CLI output helpers for Kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "json":
		return OutputJSON, nil
	case "text", "":
		return OutputText, nil
	default:
		return OutputText, fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteSearchResults writes retrieval results to w in the given format.
func WriteSearchResults(w io.Writer, query string, results []*retriever.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"query": query, "results": results})
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "\nNo relevant chunks found for %q\n", query)
		return nil
	}
	fmt.Fprintf(w, "\nFound %d relevant chunk(s) for %q\n\n", len(results), query)
	for i, result := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "Chunk: %s", result.Chunk.ID)
		if result.Chunk.Filename != "" {
			fmt.Fprintf(w, " (%s)", result.Chunk.Filename)
		}
		fmt.Fprintf(w, "\n\n%s\n\n", Truncate(result.Chunk.Content, 300))
	}
	return nil
}

// WriteAnswer writes a single generated answer to w in the given format.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	writeAnswerText(w, ans, "")
	return nil
}

// WriteAnswers writes an RFP's answers to w in the given format. Questions,
// when provided, are matched by question ID so the question text is shown
// alongside each answer.
func WriteAnswers(w io.Writer, answers []*models.Answer, questions []*models.Question, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"answers": answers})
	}
	byID := make(map[string]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	fmt.Fprintf(w, "\n%d answer(s)\n\n", len(answers))
	for _, ans := range answers {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		if q, ok := byID[ans.QuestionID]; ok {
			fmt.Fprintf(w, "Q%d: %s\n\n", q.Number, q.Text)
		}
		writeAnswerText(w, ans, "")
	}
	return nil
}

func writeAnswerText(w io.Writer, ans *models.Answer, prefix string) {
	fmt.Fprintf(w, "%s%s\n\n", prefix, ans.Text)
	if ans.Confidence != nil {
		fmt.Fprintf(w, "%sConfidence: %.2f\n", prefix, *ans.Confidence)
	}
	if len(ans.SourceChunkIDs) > 0 {
		fmt.Fprintf(w, "%sSources: %s\n", prefix, strings.Join(ans.SourceChunkIDs, ", "))
	}
	flags := []string{}
	if ans.Cached {
		flags = append(flags, "cached")
	}
	if ans.RegeneratedCount > 0 {
		flags = append(flags, fmt.Sprintf("regenerated x%d", ans.RegeneratedCount))
	}
	if len(flags) > 0 {
		fmt.Fprintf(w, "%s(%s)\n", prefix, strings.Join(flags, ", "))
	}
	fmt.Fprintln(w)
}

// WriteBatchSummary writes a batch generation summary to w in the given format.
func WriteBatchSummary(w io.Writer, summary *models.BatchSummary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, summary)
	}
	fmt.Fprintf(w, "\nRFP %s: %d question(s)\n", summary.RFPID, summary.TotalQuestions)
	fmt.Fprintf(w, "  generated: %d\n", summary.GeneratedCount)
	fmt.Fprintf(w, "  cached:    %d\n", summary.CachedCount)
	fmt.Fprintf(w, "  skipped:   %d\n", summary.SkippedCount)
	if len(summary.Errors) > 0 {
		fmt.Fprintf(w, "  failed:    %d\n", len(summary.Errors))
		for _, qe := range summary.Errors {
			fmt.Fprintf(w, "    Q%d (%s): %s\n", qe.Number, qe.QuestionID, qe.Error)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

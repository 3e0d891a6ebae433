package generator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// SystemPrompt frames the model as an RFP response writer and pins the
// grounding rules.
const SystemPrompt = `You are an expert RFP response writer. Answer questions accurately and professionally using only the provided document context. If the context does not contain enough information to answer, say so explicitly rather than guessing. Keep answers concise and suitable for inclusion in a formal RFP response.`

// FallbackSystemPrompt replaces SystemPrompt when no document context made it
// into the prompt. The grounding rule is lifted: the model answers from
// general knowledge, says so, and reports low confidence.
const FallbackSystemPrompt = `You are an expert RFP response writer. No relevant company documents were found for this question, so answer from your general knowledge. State clearly that the answer is not based on company documentation, and report low confidence. Keep answers concise and suitable for inclusion in a formal RFP response.`

// confidenceRe matches the trailing confidence marker the prompt asks for.
var confidenceRe = regexp.MustCompile(`(?mi)^\s*CONFIDENCE:\s*([0-9]*\.?[0-9]+)\s*$`)

// BuildPrompt assembles the user prompt: numbered chunk context (bounded by
// maxContextUnits words of chunk text; zero or negative means unbounded),
// optional question context, the question, and the confidence-marker
// instruction. Chunks are included in order until the first one that does not
// fit the remaining budget. Returns the prompt and how many chunks made it in.
func BuildPrompt(question, questionContext string, chunks []*models.DocumentChunk, maxContextUnits int) (string, int) {
	var b strings.Builder
	used := 0
	remaining := maxContextUnits

	for _, chunk := range chunks {
		words := len(strings.Fields(chunk.Content))
		if maxContextUnits > 0 && words > remaining {
			break
		}
		if used == 0 {
			b.WriteString("Context from company documents:\n\n")
		}
		fmt.Fprintf(&b, "[Document Chunk %d]\n%s\n\n", used+1, chunk.Content)
		remaining -= words
		used++
	}
	if used == 0 {
		b.WriteString("No relevant document context was found for this question.\n\n")
	}

	if questionContext != "" {
		fmt.Fprintf(&b, "Additional question context: %s\n\n", questionContext)
	}

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	if used > 0 {
		b.WriteString("Answer the question based on the context above. ")
	} else {
		b.WriteString("Answer from your general knowledge, and state that the answer is not based on company documentation. ")
	}
	b.WriteString("End your response with a line of the form \"CONFIDENCE: X.X\" ")
	b.WriteString("where X.X is a number between 0.0 and 1.0 indicating how well the context supports your answer.")
	return b.String(), used
}

// ParseConfidence extracts and strips the trailing CONFIDENCE marker from a
// completion. The returned confidence is clamped to [0, 1]; nil when the
// marker is absent or unparseable.
func ParseConfidence(text string) (string, *float64) {
	matches := confidenceRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), nil
	}

	// Use the last marker; strip all of them from the answer text.
	last := matches[len(matches)-1]
	raw := text[last[2]:last[3]]
	cleaned := confidenceRe.ReplaceAllString(text, "")

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return strings.TrimSpace(cleaned), nil
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return strings.TrimSpace(cleaned), &value
}

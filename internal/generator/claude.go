package generator

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeLLM implements LLM against the Anthropic Messages API.
type ClaudeLLM struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

// NewClaudeLLM creates a Claude-backed LLM. timeout bounds each API call.
func NewClaudeLLM(apiKey, model string, timeout time.Duration) (*ClaudeLLM, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required (set generation.api_key or ANTHROPIC_API_KEY)")
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &ClaudeLLM{client: client, model: model, timeout: timeout}, nil
}

// Model returns the configured model name.
func (c *ClaudeLLM) Model() string {
	return c.model
}

// Complete sends one message exchange and returns the concatenated text
// blocks of the response.
func (c *ClaudeLLM) Complete(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := c.client.Messages.New(callCtx, params)
	if err != nil {
		return "", &Error{
			Reason:    "claude API call failed",
			Retryable: isRetryable(err),
			Err:       err,
		}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &Error{Reason: "claude returned no text blocks", Retryable: true}
	}
	return text.String(), nil
}

// isRetryable classifies an API error: rate limits, upstream 5xx, timeouts,
// and network failures are transient.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "connection refused")
}

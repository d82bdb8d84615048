// ABOUTME: Messages API client for Anthropic providers via anthropic-sdk-go.
// ABOUTME: Sends one user message and reports the text blocks as a single delta.

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/2389/codex-http-server/internal/codex"
)

const anthropicMaxTokens = 4096

type anthropicClient struct {
	client anthropic.Client
}

func newAnthropicClient(baseURL, apiKey string) *anthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(withTrailingSlash(baseURL)))
	}
	return &anthropicClient{client: anthropic.NewClient(opts...)}
}

func (c *anthropicClient) Complete(ctx context.Context, req turnRequest, onDelta func(string)) (turnResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return turnResult{}, fmt.Errorf("creating message: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	if text.Len() > 0 {
		onDelta(text.String())
	}

	return turnResult{
		Text: text.String(),
		Usage: &codex.TokenCount{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

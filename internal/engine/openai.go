// ABOUTME: Chat completions client for OpenAI-compatible providers via openai-go.
// ABOUTME: Streams deltas and asks for usage, which arrives in the final chunk.

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/2389/codex-http-server/internal/codex"
)

type chatClient struct {
	client openai.Client
}

func newChatClient(baseURL, apiKey string) *chatClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(withTrailingSlash(baseURL)))
	}
	return &chatClient{client: openai.NewClient(opts...)}
}

func (c *chatClient) Complete(ctx context.Context, req turnRequest, onDelta func(string)) (turnResult, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	messages = append(messages, openai.UserMessage(req.Input))

	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	})
	defer stream.Close()

	var text strings.Builder
	var usage *codex.TokenCount
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = &codex.TokenCount{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		for _, choice := range chunk.Choices {
			if delta := choice.Delta.Content; delta != "" {
				text.WriteString(delta)
				onDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return turnResult{}, fmt.Errorf("streaming chat completion: %w", err)
	}

	return turnResult{Text: text.String(), Usage: usage}, nil
}

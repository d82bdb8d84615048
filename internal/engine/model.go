// ABOUTME: Model client abstraction shared by the provider wire APIs.
// ABOUTME: Includes the echo client used for local runs without a model.

package engine

import (
	"context"
	"strings"

	"github.com/2389/codex-http-server/internal/codex"
)

type turnRequest struct {
	Model        string
	Instructions string
	Input        string
}

type turnResult struct {
	Text  string
	Usage *codex.TokenCount
}

// modelClient runs one turn against a provider. onDelta is called for each
// streamed fragment of the reply, in order, before Complete returns.
type modelClient interface {
	Complete(ctx context.Context, req turnRequest, onDelta func(string)) (turnResult, error)
}

// withTrailingSlash makes a base URL safe for relative path resolution by the SDKs.
func withTrailingSlash(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/"
}

type echoClient struct{}

func (echoClient) Complete(ctx context.Context, req turnRequest, onDelta func(string)) (turnResult, error) {
	for _, piece := range strings.SplitAfter(req.Input, " ") {
		if err := ctx.Err(); err != nil {
			return turnResult{}, err
		}
		if piece != "" {
			onDelta(piece)
		}
	}

	words := int64(len(strings.Fields(req.Input)))
	return turnResult{
		Text: req.Input,
		Usage: &codex.TokenCount{
			InputTokens:  words,
			OutputTokens: words,
			TotalTokens:  2 * words,
		},
	}, nil
}

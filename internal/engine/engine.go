// ABOUTME: Default codex.Engine that runs each session in its own goroutine.
// ABOUTME: Picks a model client from the provider's wire API at spawn time.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/2389/codex-http-server/internal/codex"
)

var (
	ErrMissingAPIKey      = errors.New("missing api key")
	ErrUnsupportedWireAPI = errors.New("unsupported wire api")
)

// Engine spawns sessions backed by real model providers.
type Engine struct {
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
}

// New creates an Engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:    logger.With("component", "engine"),
		lookupEnv: os.LookupEnv,
	}
}

// Spawn implements codex.Engine.
func (e *Engine) Spawn(ctx context.Context, cfg codex.Config) (codex.Session, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	model, err := e.newModelClient(cfg.ModelProvider)
	if err != nil {
		return nil, "", fmt.Errorf("provider %q: %w", cfg.ModelProviderID, err)
	}

	id := uuid.NewString()
	s := newSession(id, cfg, model, e.logger.With("session_id", id))
	go s.run()

	e.logger.Info("session spawned",
		"session_id", id,
		"model", cfg.Model,
		"provider", cfg.ModelProviderID,
		"wire_api", cfg.ModelProvider.WireAPI,
	)

	return s, id, nil
}

func (e *Engine) newModelClient(provider codex.ModelProviderInfo) (modelClient, error) {
	var apiKey string
	if provider.EnvKey != "" {
		value, ok := e.lookupEnv(provider.EnvKey)
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, provider.EnvKey)
		}
		apiKey = value
	}

	switch provider.WireAPI {
	case codex.WireChat, "":
		return newChatClient(provider.BaseURL, apiKey), nil
	case codex.WireAnthropic:
		return newAnthropicClient(provider.BaseURL, apiKey), nil
	case codex.WireEcho:
		return echoClient{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedWireAPI, provider.WireAPI)
	}
}

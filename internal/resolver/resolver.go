// ABOUTME: Resolves a fresh codex.Config from cwd, env overrides and config.toml.
// ABOUTME: Applies the Ollama base URL post-pass and logs the effective settings.

package resolver

import (
	"errors"
	"log/slog"
	"os"

	"github.com/2389/codex-http-server/internal/codex"
)

// OllamaProviderID is the only provider OLLAMA_BASE_URL applies to.
const OllamaProviderID = "ollama"

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("config error")

// ConfigError reports a failure to produce a session configuration.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Op + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Resolver produces one codex.Config per request.
type Resolver struct {
	home   string
	getwd  func() (string, error)
	logger *slog.Logger
}

// New creates a Resolver reading config.toml from home.
func New(home string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		home:   home,
		getwd:  os.Getwd,
		logger: logger.With("component", "resolver"),
	}
}

// Home returns the codex home directory the resolver reads from.
func (r *Resolver) Home() string {
	return r.home
}

// Resolve builds the configuration for one turn. The returned Config is a
// fresh value owned by the caller.
func (r *Resolver) Resolve(env EnvOverrides) (codex.Config, error) {
	cwd, err := r.getwd()
	if err != nil {
		return codex.Config{}, &ConfigError{Op: "determining working directory", Err: err}
	}

	overrides := codex.ConfigOverrides{
		Model:          env.Model,
		ModelProvider:  env.Provider,
		ApprovalPolicy: r.approvalOverride(env.ApprovalPolicy),
		Cwd:            &cwd,
	}

	cfg, err := codex.LoadConfig(r.home, overrides)
	if err != nil {
		return codex.Config{}, &ConfigError{Op: "loading config", Err: err}
	}

	if cfg.ModelProviderID == OllamaProviderID && env.OllamaBaseURL != nil {
		cfg = cfg.WithModelProvider(cfg.ModelProvider.WithBaseURL(*env.OllamaBaseURL))
		r.logger.Info("using ollama base url", "base_url", *env.OllamaBaseURL)
	}

	r.logger.Info("resolved config",
		"model", cfg.Model,
		"provider", cfg.ModelProviderID,
		"approval_policy", cfg.ApprovalPolicy,
		"codex_home", cfg.CodexHome,
	)

	return cfg, nil
}

func (r *Resolver) approvalOverride(raw *string) *codex.AskForApproval {
	if raw == nil {
		return nil
	}
	policy, ok := codex.ParseAskForApproval(*raw)
	if !ok {
		r.logger.Warn("ignoring unrecognized CODEX_APPROVAL_POLICY", "value", *raw)
		return nil
	}
	return &policy
}

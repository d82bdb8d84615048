// ABOUTME: Environment overrides read on every request via envconfig.
// ABOUTME: Unset variables stay nil so they never override config.toml.

package resolver

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvOverrides holds the per-request environment overrides.
type EnvOverrides struct {
	Model          *string `envconfig:"CODEX_MODEL"`
	Provider       *string `envconfig:"CODEX_PROVIDER"`
	ApprovalPolicy *string `envconfig:"CODEX_APPROVAL_POLICY"`
	OllamaBaseURL  *string `envconfig:"OLLAMA_BASE_URL"`
}

// LoadEnv reads EnvOverrides from the process environment.
func LoadEnv() (EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process("", &env); err != nil {
		return EnvOverrides{}, fmt.Errorf("reading environment: %w", err)
	}
	return env, nil
}

// ABOUTME: Agent session configuration and the config.toml loader.
// ABOUTME: Merges built-in providers, $CODEX_HOME/config.toml and overrides.

package codex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultModel is used when neither config.toml nor an override name one.
	DefaultModel = "codex-mini-latest"

	// DefaultModelProvider is the provider ID used when none is configured.
	DefaultModelProvider = "openai"

	// ConfigFileName is the config file looked up under the codex home.
	ConfigFileName = "config.toml"
)

// WireAPI selects the protocol used to talk to a model provider.
type WireAPI string

const (
	WireChat      WireAPI = "chat"
	WireAnthropic WireAPI = "anthropic"
	WireEcho      WireAPI = "echo"
)

// ModelProviderInfo describes how to reach a model provider.
type ModelProviderInfo struct {
	Name    string  `toml:"name"`
	BaseURL string  `toml:"base_url"`
	EnvKey  string  `toml:"env_key"`
	WireAPI WireAPI `toml:"wire_api"`
}

// WithBaseURL returns a copy of p pointing at baseURL.
func (p ModelProviderInfo) WithBaseURL(baseURL string) ModelProviderInfo {
	p.BaseURL = baseURL
	return p
}

// Config is the fully resolved configuration of one agent session. It holds
// no references, so a copy never aliases another request's Config.
type Config struct {
	Model           string
	ModelProviderID string
	ModelProvider   ModelProviderInfo
	ApprovalPolicy  AskForApproval
	Instructions    string
	Cwd             string
	CodexHome       string
}

// WithModelProvider returns a copy of c using provider.
func (c Config) WithModelProvider(provider ModelProviderInfo) Config {
	c.ModelProvider = provider
	return c
}

// ConfigOverrides take precedence over config.toml. Nil fields are unset.
type ConfigOverrides struct {
	Model          *string
	ModelProvider  *string
	ApprovalPolicy *AskForApproval
	Cwd            *string
}

// configFile mirrors the subset of config.toml this server understands.
type configFile struct {
	Model          string                       `toml:"model"`
	ModelProvider  string                       `toml:"model_provider"`
	ApprovalPolicy string                       `toml:"approval_policy"`
	Instructions   string                       `toml:"instructions"`
	ModelProviders map[string]ModelProviderInfo `toml:"model_providers"`
}

// BuiltInModelProviders returns the providers known without any config file.
func BuiltInModelProviders() map[string]ModelProviderInfo {
	return map[string]ModelProviderInfo{
		"openai": {
			Name:    "OpenAI",
			BaseURL: "https://api.openai.com/v1",
			EnvKey:  "OPENAI_API_KEY",
			WireAPI: WireChat,
		},
		"openrouter": {
			Name:    "OpenRouter",
			BaseURL: "https://openrouter.ai/api/v1",
			EnvKey:  "OPENROUTER_API_KEY",
			WireAPI: WireChat,
		},
		"gemini": {
			Name:    "Gemini",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
			EnvKey:  "GEMINI_API_KEY",
			WireAPI: WireChat,
		},
		"ollama": {
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			WireAPI: WireChat,
		},
		"mistral": {
			Name:    "Mistral",
			BaseURL: "https://api.mistral.ai/v1",
			EnvKey:  "MISTRAL_API_KEY",
			WireAPI: WireChat,
		},
		"deepseek": {
			Name:    "DeepSeek",
			BaseURL: "https://api.deepseek.com",
			EnvKey:  "DEEPSEEK_API_KEY",
			WireAPI: WireChat,
		},
		"xai": {
			Name:    "xAI",
			BaseURL: "https://api.x.ai/v1",
			EnvKey:  "XAI_API_KEY",
			WireAPI: WireChat,
		},
		"groq": {
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			EnvKey:  "GROQ_API_KEY",
			WireAPI: WireChat,
		},
		"anthropic": {
			Name:    "Anthropic",
			BaseURL: "https://api.anthropic.com",
			EnvKey:  "ANTHROPIC_API_KEY",
			WireAPI: WireAnthropic,
		},
		"echo": {
			Name:    "Echo",
			WireAPI: WireEcho,
		},
	}
}

// FindCodexHome returns $CODEX_HOME, or ~/.codex when it is unset.
func FindCodexHome() (string, error) {
	if home := os.Getenv("CODEX_HOME"); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(userHome, ".codex"), nil
}

// LoadConfig builds a Config from defaults, <home>/config.toml and overrides,
// in increasing order of precedence.
func LoadConfig(home string, overrides ConfigOverrides) (Config, error) {
	file, err := readConfigFile(filepath.Join(home, ConfigFileName))
	if err != nil {
		return Config{}, err
	}

	providers := BuiltInModelProviders()
	for id, provider := range file.ModelProviders {
		if provider.Name == "" {
			provider.Name = id
		}
		if provider.WireAPI == "" {
			provider.WireAPI = WireChat
		}
		providers[id] = provider
	}

	cfg := Config{
		Model:           DefaultModel,
		ModelProviderID: DefaultModelProvider,
		ApprovalPolicy:  DefaultApprovalPolicy,
		Instructions:    file.Instructions,
		CodexHome:       home,
	}
	if file.Model != "" {
		cfg.Model = file.Model
	}
	if file.ModelProvider != "" {
		cfg.ModelProviderID = file.ModelProvider
	}
	if file.ApprovalPolicy != "" {
		policy, ok := ParseAskForApproval(file.ApprovalPolicy)
		if !ok {
			return Config{}, fmt.Errorf("invalid approval_policy %q in %s", file.ApprovalPolicy, ConfigFileName)
		}
		cfg.ApprovalPolicy = policy
	}

	if overrides.Model != nil {
		cfg.Model = *overrides.Model
	}
	if overrides.ModelProvider != nil {
		cfg.ModelProviderID = *overrides.ModelProvider
	}
	if overrides.ApprovalPolicy != nil {
		cfg.ApprovalPolicy = *overrides.ApprovalPolicy
	}
	if overrides.Cwd != nil {
		cfg.Cwd = *overrides.Cwd
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("getting working directory: %w", err)
		}
		cfg.Cwd = cwd
	}

	provider, ok := providers[cfg.ModelProviderID]
	if !ok {
		return Config{}, fmt.Errorf("model provider %q not found", cfg.ModelProviderID)
	}
	cfg.ModelProvider = provider

	return cfg, nil
}

func readConfigFile(path string) (configFile, error) {
	var file configFile

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), &file); err != nil {
		return file, fmt.Errorf("parsing %s: %w", path, err)
	}
	return file, nil
}

// Package resolver builds the codex.Config for each incoming turn.
//
// Every request resolves configuration from scratch: the process working
// directory, the CODEX_* environment variables and $CODEX_HOME/config.toml
// are read again so edits take effect on the next request without a restart.
//
// Environment variables:
//
//	CODEX_MODEL            model override
//	CODEX_PROVIDER         model provider ID override
//	CODEX_APPROVAL_POLICY  never | auto-edit | unless-allow-listed | on-failure
//	OLLAMA_BASE_URL        base URL for the "ollama" provider only
//
// An unrecognized CODEX_APPROVAL_POLICY is ignored with a warning. Any failure
// to produce a Config is returned as a *ConfigError.
package resolver

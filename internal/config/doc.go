// Package config handles server configuration loading for codex-http-server.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. A missing file is not an error: every field has a default and
// the server listens on 127.0.0.1:8080.
//
// This package only covers the server process. Agent settings (model,
// provider, approval policy) come from $CODEX_HOME/config.toml and CODEX_*
// variables, resolved per request by package resolver.
//
// # Configuration File
//
// Locations (first match wins):
//
//  1. Path from CODEX_HTTP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/codex-http/server.yaml
//  3. ~/.config/codex-http/server.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  shutdown_timeout: "5s"
//
//	codex:
//	  home: "/srv/codex"          # default: $CODEX_HOME or ~/.codex
//
//	database:
//	  path: "~/.local/share/codex-http/turns.db"   # empty disables the turn ledger
//
//	tailscale:
//	  enabled: false
//	  hostname: "codex"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: ""
//	  ephemeral: false
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text, json
package config

// Package codex defines the contract between the HTTP gateway and the agent engine.
//
// # Overview
//
// The gateway never reasons about what an agent does. It only needs to:
//
//  1. Build a Config for one turn (see LoadConfig).
//  2. Spawn a Session from an Engine.
//  3. Submit one Op carrying the user's input.
//  4. Drain Events until a terminal one arrives.
//  5. Shut the Session down.
//
// Everything an engine emits is an Event whose Msg is one of the EventMsg
// types in protocol.go. Only TaskComplete and ErrorEvent are terminal; every
// other message is forwarded to the client without inspection.
//
// # Wire Format
//
// Events serialize the way the codex protocol does, with the message flattened
// into an object carrying a "type" discriminator:
//
//	{"id":"1","msg":{"type":"agent_message","message":"Hello!"}}
//	{"id":"1","msg":{"type":"task_complete","last_agent_message":"Hello!"}}
//
// # Configuration
//
// LoadConfig merges built-in defaults, $CODEX_HOME/config.toml and a set of
// already-computed overrides into an immutable Config value:
//
//	model = "llama3.2"
//	model_provider = "ollama"
//	approval_policy = "on-failure"
//
//	[model_providers.local]
//	name = "Local vLLM"
//	base_url = "http://localhost:8000/v1"
//	wire_api = "chat"
//
// A missing config.toml is not an error.
package codex

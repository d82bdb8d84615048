// Package engine is the default codex.Engine.
//
// # Sessions
//
// Each spawned session owns one goroutine that reads submitted operations and
// writes events to a buffered channel. A session emits SessionConfigured as
// soon as it starts. Each user_input operation then produces:
//
//	task_started
//	agent_message_delta   (zero or more)
//	agent_message
//	token_count           (when the provider reports usage)
//	task_complete
//
// or task_started followed by a single error event when the model call fails.
//
// Shutdown cancels the session's context, which aborts any in-flight model
// request and closes the event channel once the goroutine exits.
//
// # Providers
//
// The provider's wire API picks the model client:
//
//	chat       OpenAI-compatible chat completions via openai-go (streamed)
//	anthropic  Anthropic Messages API via anthropic-sdk-go
//	echo       replies with the input, for local testing without a model
//
// Spawn fails when the provider names an env_key whose variable is unset or
// empty, or when its wire API is unknown.
package engine

// Package gateway exposes agent turns over HTTP as Server-Sent Events.
//
// # Architecture
//
// The Gateway owns one HTTP server with two routes:
//
//	POST /v1/responses  run one agent turn and stream its events
//	POST /health        liveness probe
//
// Each /v1/responses request is handled independently on its own goroutine:
//
//	parse body ──► resolve config ──► launch session ──► stream frames ──► terminate
//	   │                │                   │
//	   400             500                 500
//
// # Request
//
//	{"input": "Hello", "previous_response_id": null, "instructions": null, "store": true}
//
// Only "input" is required and only "input" reaches the agent. The body is
// validated against a JSON schema before anything else happens.
//
// # Response
//
// Once the session is running the response is a text/event-stream. Every
// agent event is written as one frame and flushed immediately:
//
//	data: {"event":"data","data":{"id":"","msg":{"type":"session_configured",...}}}
//
//	data: {"event":"data","data":{"id":"1","msg":{"type":"task_started"}}}
//
//	data: {"event":"data","data":{"id":"1","msg":{"type":"agent_message","message":"Hi"}}}
//
//	data: {"event":"data","data":{"id":"1","msg":{"type":"task_complete","last_agent_message":"Hi"}}}
//
// The stream ends after a task_complete or error event. If the next event
// cannot be fetched, a single error frame ends the stream instead:
//
//	event: error
//	data: {"event":"error","data":{"error":"session closed"}}
//
// # Cancellation
//
// When the client disconnects the request context is canceled. The handler
// stops writing and shuts the session down exactly once. Sessions are also
// shut down after a normal terminal frame.
//
// # Turn Ledger
//
// With database.path set, every launched turn is recorded in the store
// package's SQLite ledger along with its outcome and token usage. Ledger
// failures are logged and never affect the stream.
//
// # Listener
//
// The server listens on server.http_addr, or on port 80 of a tsnet node when
// tailscale.enabled is set.
package gateway

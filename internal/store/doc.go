// Package store provides the turn ledger for the gateway using SQLite.
//
// # Data Models
//
//   - Turn: one POST /v1/responses request that reached a running session,
//     with its resolved model, provider and approval policy, how many frames
//     were streamed and how the stream ended
//   - TokenUsage: token counts reported by the session during a turn
//
// The ledger never stores the user's input or the agent's output. A Turn only
// records the input's length.
//
// # Lifecycle
//
// StartTurn inserts a row in the "streaming" state once the session has
// launched. FinishTurn records one of "completed", "failed" or "disconnected"
// along with the frame count when the stream ends.
//
// # Implementations
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo) in WAL mode.
// MockStore is an in-memory implementation for tests.
package store

// ABOUTME: Engine and Session interfaces implemented by agent engines.
// ABOUTME: The gateway depends only on these, never on a concrete engine.

package codex

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by a Session that has been shut down or whose
// event stream has ended.
var ErrSessionClosed = errors.New("session closed")

// Engine starts agent sessions.
type Engine interface {
	// Spawn starts a session configured by cfg and returns it with its ID.
	// A failed spawn leaves nothing running.
	Spawn(ctx context.Context, cfg Config) (Session, string, error)
}

// Session is one running agent.
type Session interface {
	// Submit queues an operation and returns its submission ID.
	Submit(ctx context.Context, op Op) (string, error)

	// NextEvent blocks until the next event is available, the session ends
	// (ErrSessionClosed) or ctx is done.
	NextEvent(ctx context.Context) (Event, error)

	// Shutdown asks the session to stop any work in progress and release its
	// resources. It does not wait for the session to finish.
	Shutdown()
}

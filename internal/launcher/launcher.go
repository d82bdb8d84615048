// ABOUTME: Starts an agent session and submits the turn's single text input.
// ABOUTME: Handle wraps the session so termination is signalled at most once.

package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/codex-http-server/internal/codex"
)

// Stage identifies which step of a launch failed.
type Stage string

const (
	StageSpawn  Stage = "spawn"
	StageSubmit Stage = "submit"
)

var (
	ErrSpawnFailed  = errors.New("session spawn failed")
	ErrSubmitFailed = errors.New("input submission failed")
)

// LaunchError reports a failed launch. It matches ErrSpawnFailed or
// ErrSubmitFailed depending on Stage.
type LaunchError struct {
	Stage Stage
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%v: %v", e.sentinel(), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func (e *LaunchError) Is(target error) bool { return target == e.sentinel() }

func (e *LaunchError) sentinel() error {
	if e.Stage == StageSubmit {
		return ErrSubmitFailed
	}
	return ErrSpawnFailed
}

// Launcher starts sessions on an engine.
type Launcher struct {
	engine codex.Engine
	logger *slog.Logger
}

// New creates a Launcher for engine.
func New(engine codex.Engine, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		engine: engine,
		logger: logger.With("component", "launcher"),
	}
}

// Launch spawns a session with cfg and submits input as one text item. On
// success the caller owns the Handle and must Terminate it.
func (l *Launcher) Launch(ctx context.Context, cfg codex.Config, input string) (*Handle, error) {
	session, sessionID, err := l.engine.Spawn(ctx, cfg)
	if err != nil {
		return nil, &LaunchError{Stage: StageSpawn, Err: err}
	}

	handle := &Handle{id: sessionID, session: session}

	submissionID, err := session.Submit(ctx, codex.UserInput(codex.TextInput(input)))
	if err != nil {
		handle.Terminate()
		return nil, &LaunchError{Stage: StageSubmit, Err: err}
	}

	l.logger.Debug("turn submitted",
		"session_id", sessionID,
		"submission_id", submissionID,
		"input_len", len(input),
	)

	return handle, nil
}

// Handle is a running session owned by exactly one request.
type Handle struct {
	id      string
	session codex.Session
	once    sync.Once
}

// SessionID returns the engine-assigned session ID.
func (h *Handle) SessionID() string {
	return h.id
}

// Next returns the session's next event.
func (h *Handle) Next(ctx context.Context) (codex.Event, error) {
	return h.session.NextEvent(ctx)
}

// Terminate shuts the session down. Only the first call signals the session;
// it reports whether this call was that one.
func (h *Handle) Terminate() bool {
	signalled := false
	h.once.Do(func() {
		h.session.Shutdown()
		signalled = true
	})
	return signalled
}

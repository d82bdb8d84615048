// Package launcher turns a resolved codex.Config and the user's input into a
// running session ready to be drained.
//
// # Overview
//
// A Launcher wraps a codex.Engine. Each HTTP request calls Launch once:
//
//	handle, err := l.Launch(ctx, cfg, "Hello")
//	if err != nil {
//	    // nothing is running; respond 500
//	}
//	defer handle.Terminate()
//	for {
//	    ev, err := handle.Next(ctx)
//	    ...
//	}
//
// Launch spawns a session with the resolved config and submits the input as a
// single text item in one user_input operation. The input is passed through
// unchanged, including the empty string.
//
// # Failure Stages
//
// A failed launch returns a *LaunchError whose Stage says which step failed:
//
//	StageSpawn   engine.Spawn failed; no session exists   errors.Is(err, ErrSpawnFailed)
//	StageSubmit  Submit failed; the session is shut down  errors.Is(err, ErrSubmitFailed)
//
// The underlying cause is available through errors.Unwrap. Launches are never
// retried.
//
// # Termination
//
// On success the caller owns the Handle. Terminate forwards Shutdown to the
// session at most once, however many times and from however many goroutines
// it is called, and reports whether this call was the one that did. The
// gateway relies on this when a client disconnect and the end of the stream
// race to clean up the same session.
package launcher

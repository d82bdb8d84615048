// ABOUTME: Scripted in-memory codex.Engine for tests of code that drives sessions.
// ABOUTME: Records spawns, submissions and shutdowns for later assertions.

// Package codextest provides a scripted codex.Engine for tests.
package codextest

import (
	"context"
	"fmt"
	"sync"

	"github.com/2389/codex-http-server/internal/codex"
)

// Engine spawns Sessions that replay Events. Once the script is exhausted a
// session returns NextErr if set, otherwise it blocks until it is shut down
// or the caller's context is done.
type Engine struct {
	SpawnErr  error
	SubmitErr error
	Events    []codex.Event
	NextErr   error

	mu       sync.Mutex
	sessions []*Session
	configs  []codex.Config
}

// Spawn implements codex.Engine.
func (e *Engine) Spawn(_ context.Context, cfg codex.Config) (codex.Session, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.configs = append(e.configs, cfg)
	if e.SpawnErr != nil {
		return nil, "", e.SpawnErr
	}

	id := fmt.Sprintf("session-%d", len(e.sessions)+1)
	s := &Session{
		id:        id,
		events:    append([]codex.Event(nil), e.Events...),
		nextErr:   e.NextErr,
		submitErr: e.SubmitErr,
		done:      make(chan struct{}),
	}
	e.sessions = append(e.sessions, s)
	return s, id, nil
}

// Sessions returns every session spawned so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// SpawnCalls returns the configs Spawn was called with.
func (e *Engine) SpawnCalls() []codex.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]codex.Config(nil), e.configs...)
}

// Session is a scripted codex.Session.
type Session struct {
	id        string
	nextErr   error
	submitErr error
	done      chan struct{}

	mu        sync.Mutex
	events    []codex.Event
	pos       int
	submitted []codex.Op
	shutdowns int
}

// Submit implements codex.Session.
func (s *Session) Submit(_ context.Context, op codex.Op) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.submitted = append(s.submitted, op)
	return fmt.Sprintf("%d", len(s.submitted)), nil
}

// NextEvent implements codex.Session.
func (s *Session) NextEvent(ctx context.Context) (codex.Event, error) {
	s.mu.Lock()
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()

	if s.nextErr != nil {
		return codex.Event{}, s.nextErr
	}

	select {
	case <-s.done:
		return codex.Event{}, codex.ErrSessionClosed
	case <-ctx.Done():
		return codex.Event{}, ctx.Err()
	}
}

// Shutdown implements codex.Session.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdowns == 0 {
		close(s.done)
	}
	s.shutdowns++
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Submitted returns the operations submitted to the session.
func (s *Session) Submitted() []codex.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]codex.Op(nil), s.submitted...)
}

// Shutdowns returns how many times Shutdown was called.
func (s *Session) Shutdowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns
}

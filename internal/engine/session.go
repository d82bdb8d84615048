// ABOUTME: A running agent session: an op queue in, an event channel out.
// ABOUTME: Turns run on the session goroutine and can be interrupted or shut down.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/2389/codex-http-server/internal/codex"
)

const (
	opQueueSize     = 8
	eventBufferSize = 64
)

var errTurnInterrupted = errors.New("turn interrupted")

type submission struct {
	id string
	op codex.Op
}

type session struct {
	id     string
	cfg    codex.Config
	model  modelClient
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan submission
	events chan codex.Event
	nextID atomic.Uint64

	mu               sync.Mutex
	turnCancel       context.CancelFunc
	queuedTurns      int
	// set by an interrupt that arrives while a turn is queued
	interruptPending bool
}

func newSession(id string, cfg codex.Config, model modelClient, logger *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:     id,
		cfg:    cfg,
		model:  model,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		ops:    make(chan submission, opQueueSize),
		events: make(chan codex.Event, eventBufferSize),
	}
}

// Submit implements codex.Session. Interrupts bypass the queue so they reach
// a turn that is already running. An interrupt that arrives while a turn is
// still queued cancels that turn when it starts.
func (s *session) Submit(ctx context.Context, op codex.Op) (string, error) {
	if s.ctx.Err() != nil {
		return "", codex.ErrSessionClosed
	}

	id := strconv.FormatUint(s.nextID.Add(1), 10)
	if op.Type == codex.OpInterrupt {
		s.interrupt()
		return id, nil
	}

	isTurn := op.Type == codex.OpUserInput
	if isTurn {
		s.addQueuedTurns(1)
	}

	select {
	case s.ops <- submission{id: id, op: op}:
		return id, nil
	case <-s.ctx.Done():
		if isTurn {
			s.addQueuedTurns(-1)
		}
		return "", codex.ErrSessionClosed
	case <-ctx.Done():
		if isTurn {
			s.addQueuedTurns(-1)
		}
		return "", ctx.Err()
	}
}

// NextEvent implements codex.Session.
func (s *session) NextEvent(ctx context.Context) (codex.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return codex.Event{}, codex.ErrSessionClosed
		}
		return ev, nil
	case <-ctx.Done():
		return codex.Event{}, ctx.Err()
	}
}

// Shutdown implements codex.Session.
func (s *session) Shutdown() {
	s.cancel()
}

func (s *session) run() {
	defer close(s.events)

	configured := codex.SessionConfigured{
		SessionID:      s.id,
		Model:          s.cfg.Model,
		ModelProvider:  s.cfg.ModelProviderID,
		ApprovalPolicy: s.cfg.ApprovalPolicy,
		Cwd:            s.cfg.Cwd,
	}
	if !s.emit("", configured) {
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("session shut down")
			return
		case sub := <-s.ops:
			s.handle(sub)
		}
	}
}

func (s *session) handle(sub submission) {
	switch sub.op.Type {
	case codex.OpUserInput:
		s.runTurn(sub)
	default:
		s.emit(sub.id, codex.ErrorEvent{Message: fmt.Sprintf("unsupported operation %q", sub.op.Type)})
	}
}

func (s *session) runTurn(sub submission) {
	turnCtx, cancel := context.WithCancel(s.ctx)
	if s.beginTurn(cancel) {
		cancel()
	}
	defer func() {
		s.endTurn()
		cancel()
	}()

	if !s.emit(sub.id, codex.TaskStarted{}) {
		return
	}

	if turnCtx.Err() != nil {
		if s.ctx.Err() == nil {
			s.emit(sub.id, codex.ErrorEvent{Message: errTurnInterrupted.Error()})
		}
		return
	}

	req := turnRequest{
		Model:        s.cfg.Model,
		Instructions: s.cfg.Instructions,
		Input:        joinText(sub.op.Items),
	}
	result, err := s.model.Complete(turnCtx, req, func(delta string) {
		s.emit(sub.id, codex.AgentMessageDelta{Delta: delta})
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if turnCtx.Err() != nil {
			err = errTurnInterrupted
		}
		s.logger.Warn("turn failed", "submission_id", sub.id, "error", err)
		s.emit(sub.id, codex.ErrorEvent{Message: err.Error()})
		return
	}

	s.emit(sub.id, codex.AgentMessage{Message: result.Text})
	if result.Usage != nil {
		s.emit(sub.id, *result.Usage)
	}
	last := result.Text
	s.emit(sub.id, codex.TaskComplete{LastAgentMessage: &last})
}

// emit delivers an event unless the session is shutting down.
func (s *session) emit(id string, msg codex.EventMsg) bool {
	select {
	case s.events <- codex.Event{ID: id, Msg: msg}:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *session) addQueuedTurns(n int) {
	s.mu.Lock()
	s.queuedTurns += n
	s.mu.Unlock()
}

// beginTurn marks a queued turn as running. It reports whether an interrupt
// arrived while the turn was waiting.
func (s *session) beginTurn(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queuedTurns--
	s.turnCancel = cancel
	pending := s.interruptPending
	s.interruptPending = false
	return pending
}

func (s *session) endTurn() {
	s.mu.Lock()
	s.turnCancel = nil
	s.mu.Unlock()
}

// interrupt cancels the running turn, or the next queued one. With nothing
// running or queued it does nothing.
func (s *session) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.turnCancel != nil:
		s.turnCancel()
	case s.queuedTurns > 0:
		s.interruptPending = true
	}
}

func joinText(items []codex.InputItem) string {
	var parts []string
	for _, item := range items {
		if item.Type == codex.InputText {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

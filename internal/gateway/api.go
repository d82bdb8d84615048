// ABOUTME: HTTP handlers for POST /v1/responses (SSE) and POST /health.
// ABOUTME: Validates the request, launches a session and streams its events.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/2389/codex-http-server/internal/codex"
	"github.com/2389/codex-http-server/internal/launcher"
	"github.com/2389/codex-http-server/internal/sse"
	"github.com/2389/codex-http-server/internal/store"
)

// maxRequestBytes caps the request body read by /v1/responses.
const maxRequestBytes = 1 << 20

// ResponsesRequest is the JSON request body for POST /v1/responses.
// Only Input drives the turn; the other fields are accepted and logged.
type ResponsesRequest struct {
	Input              string  `json:"input"`
	PreviousResponseID *string `json:"previous_response_id,omitempty"`
	Instructions       *string `json:"instructions,omitempty"`
	Store              *bool   `json:"store,omitempty"`
}

// HealthResponse is the JSON response for POST /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

const responsesRequestSchema = `{
	"type": "object",
	"required": ["input"],
	"properties": {
		"input": {"type": "string"},
		"previous_response_id": {"type": ["string", "null"]},
		"instructions": {"type": ["string", "null"]},
		"store": {"type": ["boolean", "null"]}
	}
}`

var responsesSchema = mustCompileSchema(responsesRequestSchema)

func mustCompileSchema(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("compiling request schema: %v", err))
	}
	return s
}

// handleHealth handles POST /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Service: ServiceName})
}

// handleResponses handles POST /v1/responses. Failures before the stream
// starts are reported with a status code; failures after are reported in-band.
func (g *Gateway) handleResponses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseResponsesRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.logger.Debug("responses request",
		"input_len", len(req.Input),
		"previous_response_id", derefString(req.PreviousResponseID),
		"has_instructions", req.Instructions != nil,
		"store", req.Store != nil && *req.Store,
	)

	// Check streaming support before launching (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	env, err := g.loadEnv()
	if err != nil {
		g.logger.Error("failed to read environment", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	cfg, err := g.resolver.Resolve(env)
	if err != nil {
		g.logger.Error("failed to resolve config", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	handle, err := g.launcher.Launch(r.Context(), cfg, req.Input)
	if err != nil {
		var launchErr *launcher.LaunchError
		stage := "unknown"
		if errors.As(err, &launchErr) {
			stage = string(launchErr.Stage)
		}
		g.logger.Error("failed to launch session", "stage", stage, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger := g.logger.With("session_id", handle.SessionID())
	turnID := uuid.NewString()
	g.startTurn(r.Context(), logger, &store.Turn{
		ID:             turnID,
		SessionID:      handle.SessionID(),
		Model:          cfg.Model,
		Provider:       cfg.ModelProviderID,
		ApprovalPolicy: string(cfg.ApprovalPolicy),
		InputChars:     utf8.RuneCountInString(req.Input),
		StartedAt:      time.Now(),
	})

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	observer := &turnObserver{handle: handle}
	result := g.streamTurn(r.Context(), w, flusher, handle, observer, logger)

	logger.Info("turn finished", "status", result.status, "frames", result.frames)
	g.finishTurn(r.Context(), logger, turnID, result, observer.usage)
}

type turnResult struct {
	status store.TurnStatus
	frames int
	err    string
}

// streamTurn writes one frame per event until a terminal frame is written or
// the client goes away. The session is terminated in either case.
func (g *Gateway) streamTurn(ctx context.Context, w io.Writer, flusher http.Flusher, handle *launcher.Handle, observer *turnObserver, logger *slog.Logger) turnResult {
	defer handle.Terminate()

	var result turnResult
	for {
		frame, terminal := sse.NextFrame(ctx, observer)

		if ctx.Err() != nil {
			logger.Info("client disconnected, terminating session")
			result.status = store.TurnDisconnected
			result.err = "client disconnected"
			return result
		}

		if _, err := frame.WriteTo(w); err != nil {
			logger.Info("client write failed, terminating session", "error", err)
			result.status = store.TurnDisconnected
			result.err = err.Error()
			return result
		}
		flusher.Flush()
		result.frames++

		if terminal {
			if frame.Type == codex.EventTaskComplete {
				result.status = store.TurnCompleted
			} else {
				result.status = store.TurnFailed
				result.err = observer.errMsg
			}
			return result
		}
	}
}

// turnObserver is the stream's event source. It passes events through
// unchanged and keeps what the turn ledger needs.
type turnObserver struct {
	handle *launcher.Handle
	usage  []codex.TokenCount
	errMsg string
}

func (o *turnObserver) Next(ctx context.Context) (codex.Event, error) {
	ev, err := o.handle.Next(ctx)
	if err != nil {
		o.errMsg = err.Error()
		return ev, err
	}

	switch msg := ev.Msg.(type) {
	case codex.TokenCount:
		o.usage = append(o.usage, msg)
	case codex.ErrorEvent:
		o.errMsg = msg.Message
	}
	return ev, nil
}

// startTurn records the turn in the ledger. Ledger failures never affect the stream.
func (g *Gateway) startTurn(ctx context.Context, logger *slog.Logger, turn *store.Turn) {
	if g.store == nil {
		return
	}
	if err := g.store.StartTurn(context.WithoutCancel(ctx), turn); err != nil {
		logger.Warn("failed to record turn start", "turn_id", turn.ID, "error", err)
	}
}

// finishTurn records the outcome and usage. It runs after the client may have
// disconnected, so it does not inherit the request's cancellation.
func (g *Gateway) finishTurn(ctx context.Context, logger *slog.Logger, turnID string, result turnResult, usage []codex.TokenCount) {
	if g.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := time.Now()

	for _, u := range usage {
		err := g.store.SaveUsage(ctx, &store.TokenUsage{
			TurnID:       turnID,
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
			TotalTokens:  u.TotalTokens,
			CreatedAt:    now,
		})
		if err != nil {
			logger.Warn("failed to record token usage", "turn_id", turnID, "error", err)
		}
	}

	err := g.store.FinishTurn(ctx, turnID, store.TurnOutcome{
		Status:  result.status,
		Frames:  result.frames,
		Error:   result.err,
		EndedAt: now,
	})
	if err != nil {
		logger.Warn("failed to record turn outcome", "turn_id", turnID, "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseResponsesRequest reads and validates a ResponsesRequest.
// Returns an error if the body is not JSON or does not match the request schema.
func parseResponsesRequest(r io.Reader) (*ResponsesRequest, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxRequestBytes))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}

	if !json.Valid(data) {
		return nil, errors.New("invalid JSON body")
	}

	result, err := responsesSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid request: %s", strings.Join(problems, "; "))
	}

	var req ResponsesRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	return &req, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ABOUTME: Tests for the /v1/responses SSE handler and the /health handler.
// ABOUTME: Verifies request validation, streaming, disconnects and error statuses.

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/codex-http-server/internal/codex"
	"github.com/2389/codex-http-server/internal/codex/codextest"
	"github.com/2389/codex-http-server/internal/config"
	"github.com/2389/codex-http-server/internal/resolver"
	"github.com/2389/codex-http-server/internal/store"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, engine codex.Engine) *Gateway {
	t.Helper()

	cfg := config.Default()
	cfg.Codex.Home = t.TempDir()

	gw, err := New(cfg, engine, testLogger())
	require.NoError(t, err)

	gw.loadEnv = func() (resolver.EnvOverrides, error) {
		return resolver.EnvOverrides{}, nil
	}
	return gw
}

func helloTurn() []codex.Event {
	last := "Hello!"
	return []codex.Event{
		{ID: "", Msg: codex.SessionConfigured{SessionID: "session-1", Model: "m"}},
		{ID: "1", Msg: codex.TaskStarted{}},
		{ID: "1", Msg: codex.AgentMessage{Message: "Hello!"}},
		{ID: "1", Msg: codex.TokenCount{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}},
		{ID: "1", Msg: codex.TaskComplete{LastAgentMessage: &last}},
	}
}

func postResponses(gw *Gateway, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	gw.handleResponses(rec, req)
	return rec
}

// splitFrames returns the SSE records in body without their trailing blank line.
func splitFrames(body string) []string {
	var frames []string
	for _, f := range strings.Split(body, "\n\n") {
		if f != "" {
			frames = append(frames, f)
		}
	}
	return frames
}

// framePayload decodes the JSON on a frame's data line.
func framePayload(t *testing.T, frame string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(frame, "\n") {
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var payload map[string]any
			require.NoError(t, json.Unmarshal([]byte(data), &payload))
			return payload
		}
	}
	t.Fatalf("frame has no data line: %q", frame)
	return nil
}

func msgType(t *testing.T, frame string) string {
	t.Helper()
	payload := framePayload(t, frame)
	data := payload["data"].(map[string]any)
	return data["msg"].(map[string]any)["type"].(string)
}

func TestHandleResponses_StreamsEveryEvent(t *testing.T) {
	engine := &codextest.Engine{Events: helloTurn()}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":"hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	frames := splitFrames(rec.Body.String())
	require.Len(t, frames, 5)

	wantTypes := []string{"session_configured", "task_started", "agent_message", "token_count", "task_complete"}
	for i, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: "), "frame %d should be a data frame: %q", i, frame)
		assert.Equal(t, "data", framePayload(t, frame)["event"])
		assert.Equal(t, wantTypes[i], msgType(t, frame))
	}

	sessions := engine.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, []codex.Op{codex.UserInput(codex.TextInput("hello"))}, sessions[0].Submitted())
	assert.Equal(t, 1, sessions[0].Shutdowns(), "session is terminated after the terminal frame")
}

func TestHandleResponses_StopsAtTerminalEvent(t *testing.T) {
	events := append(helloTurn(), codex.Event{ID: "1", Msg: codex.AgentMessage{Message: "late"}})
	engine := &codextest.Engine{Events: events}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":"hello"}`)

	frames := splitFrames(rec.Body.String())
	require.Len(t, frames, 5)
	assert.Equal(t, "task_complete", msgType(t, frames[len(frames)-1]))
	assert.NotContains(t, rec.Body.String(), "late")
}

func TestHandleResponses_ErrorEventEndsStream(t *testing.T) {
	engine := &codextest.Engine{Events: []codex.Event{
		{Msg: codex.SessionConfigured{}},
		{ID: "1", Msg: codex.TaskStarted{}},
		{ID: "1", Msg: codex.ErrorEvent{Message: "model unavailable"}},
	}}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":"hello"}`)

	frames := splitFrames(rec.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, "error", msgType(t, frames[2]))
	assert.True(t, strings.HasPrefix(frames[2], "data: "), "agent error events are data frames")
}

func TestHandleResponses_FetchFailureWritesErrorFrame(t *testing.T) {
	engine := &codextest.Engine{
		Events:  []codex.Event{{Msg: codex.SessionConfigured{}}},
		NextErr: errors.New("engine crashed"),
	}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":"hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	frames := splitFrames(rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "event: error\ndata: {\"event\":\"error\",\"data\":{\"error\":\"engine crashed\"}}", frames[1])
}

func TestHandleResponses_EmptyInput(t *testing.T) {
	engine := &codextest.Engine{Events: helloTurn()}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":""}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	ops := engine.Sessions()[0].Submitted()
	require.Len(t, ops, 1)
	assert.Equal(t, "", ops[0].Items[0].Text)
}

func TestHandleResponses_OptionalFieldsAccepted(t *testing.T) {
	engine := &codextest.Engine{Events: helloTurn()}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":"hi","previous_response_id":"resp_1","instructions":"be terse","store":true}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", engine.Sessions()[0].Submitted()[0].Items[0].Text)
}

func TestHandleResponses_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "malformed JSON", body: `{"input":`, wantErr: "invalid JSON body"},
		{name: "not JSON", body: `hello`, wantErr: "invalid JSON body"},
		{name: "missing input", body: `{}`, wantErr: "input is required"},
		{name: "input not a string", body: `{"input":42}`, wantErr: "invalid request"},
		{name: "store not a bool", body: `{"input":"hi","store":"yes"}`, wantErr: "invalid request"},
		{name: "array body", body: `["hi"]`, wantErr: "invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &codextest.Engine{}
			gw := newTestGateway(t, engine)

			rec := postResponses(gw, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var errResp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.Contains(t, errResp["error"], tt.wantErr)
			assert.Empty(t, engine.SpawnCalls(), "no session is started for a bad request")
		})
	}
}

func TestHandleResponses_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, &codextest.Engine{})

	req := httptest.NewRequest(http.MethodGet, "/v1/responses", nil)
	rec := httptest.NewRecorder()
	gw.handleResponses(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleResponses_ConfigErrorIs500(t *testing.T) {
	engine := &codextest.Engine{}
	gw := newTestGateway(t, engine)
	err := os.WriteFile(filepath.Join(gw.resolver.Home(), codex.ConfigFileName), []byte("model = [oops"), 0644)
	require.NoError(t, err)

	rec := postResponses(gw, `{"input":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, engine.SpawnCalls())
}

func TestHandleResponses_SpawnFailureIs500(t *testing.T) {
	engine := &codextest.Engine{SpawnErr: errors.New("invalid credentials")}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestHandleResponses_SubmitFailureIs500(t *testing.T) {
	engine := &codextest.Engine{SubmitErr: errors.New("queue closed")}
	gw := newTestGateway(t, engine)

	rec := postResponses(gw, `{"input":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())
	require.Len(t, engine.Sessions(), 1)
	assert.Equal(t, 1, engine.Sessions()[0].Shutdowns())
}

func TestHandleResponses_EnvOverridesReachEngine(t *testing.T) {
	engine := &codextest.Engine{Events: helloTurn()}
	gw := newTestGateway(t, engine)
	gw.loadEnv = func() (resolver.EnvOverrides, error) {
		provider := "ollama"
		model := "llama3.2"
		baseURL := "http://gpu-box:11434/v1"
		policy := "never"
		return resolver.EnvOverrides{
			Model:          &model,
			Provider:       &provider,
			ApprovalPolicy: &policy,
			OllamaBaseURL:  &baseURL,
		}, nil
	}

	rec := postResponses(gw, `{"input":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	calls := engine.SpawnCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "llama3.2", calls[0].Model)
	assert.Equal(t, "ollama", calls[0].ModelProviderID)
	assert.Equal(t, "http://gpu-box:11434/v1", calls[0].ModelProvider.BaseURL)
	assert.Equal(t, codex.ApprovalNever, calls[0].ApprovalPolicy)
}

// plainWriter is a ResponseWriter that cannot flush.
type plainWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (w *plainWriter) Header() http.Header         { return w.header }
func (w *plainWriter) Write(b []byte) (int, error) { return w.body.Write(b) }
func (w *plainWriter) WriteHeader(code int)        { w.code = code }

func TestHandleResponses_NonFlushingWriter(t *testing.T) {
	engine := &codextest.Engine{Events: helloTurn()}
	gw := newTestGateway(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(`{"input":"hello"}`))
	w := &plainWriter{header: make(http.Header)}
	gw.handleResponses(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.code)
	assert.Empty(t, engine.SpawnCalls())
}

func TestHandleResponses_RecordsTurn(t *testing.T) {
	engine := &codextest.Engine{Events: helloTurn()}
	gw := newTestGateway(t, engine)
	ledger := store.NewMockStore()
	gw.store = ledger

	rec := postResponses(gw, `{"input":"héllo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	turns, err := ledger.ListTurns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)

	turn := turns[0]
	assert.Equal(t, store.TurnCompleted, turn.Status)
	assert.Equal(t, 5, turn.Frames)
	assert.Equal(t, 5, turn.InputChars)
	assert.Equal(t, "openai", turn.Provider)
	assert.Equal(t, string(codex.ApprovalUnlessAllowListed), turn.ApprovalPolicy)
	assert.Equal(t, engine.Sessions()[0].ID(), turn.SessionID)
	assert.NotNil(t, turn.EndedAt)

	usage, err := ledger.GetTurnUsage(ctx, turn.ID)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, int64(5), usage[0].TotalTokens)
}

func TestHandleResponses_RecordsFailedTurn(t *testing.T) {
	engine := &codextest.Engine{Events: []codex.Event{
		{Msg: codex.SessionConfigured{}},
		{ID: "1", Msg: codex.ErrorEvent{Message: "rate limited"}},
	}}
	gw := newTestGateway(t, engine)
	ledger := store.NewMockStore()
	gw.store = ledger

	postResponses(gw, `{"input":"hello"}`)

	turns, err := ledger.ListTurns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, store.TurnFailed, turns[0].Status)
	assert.Equal(t, "rate limited", turns[0].Error)
	assert.Equal(t, 2, turns[0].Frames)
}

func TestHandleResponses_ClientDisconnect(t *testing.T) {
	// One event, then the session blocks until it is shut down.
	engine := &codextest.Engine{Events: []codex.Event{
		{Msg: codex.SessionConfigured{SessionID: "session-1"}},
	}}
	gw := newTestGateway(t, engine)
	ledger := store.NewMockStore()
	gw.store = ledger

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/v1/responses", strings.NewReader(`{"input":"hello"}`))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: "))

	cancel()
	resp.Body.Close()

	require.Eventually(t, func() bool {
		turns, _ := ledger.ListTurns(context.Background(), 10)
		return len(turns) == 1 && turns[0].Status == store.TurnDisconnected
	}, 5*time.Second, 10*time.Millisecond)

	sessions := engine.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Shutdowns(), "session is terminated exactly once")

	turns, err := ledger.ListTurns(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, turns[0].Frames, "nothing is written after the disconnect")
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t, &codextest.Engine{})

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	gw.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy","service":"codex-http-server"}`, rec.Body.String())
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, &codextest.Engine{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.handleHealth(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestParseResponsesRequest(t *testing.T) {
	req, err := parseResponsesRequest(strings.NewReader(`{"input":"hi","instructions":null,"store":false}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", req.Input)
	assert.Nil(t, req.Instructions)
	require.NotNil(t, req.Store)
	assert.False(t, *req.Store)
	assert.Nil(t, req.PreviousResponseID)
}

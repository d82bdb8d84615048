// ABOUTME: Tests for event-to-frame conversion and SSE wire formatting
// ABOUTME: Covers ordering, terminal detection and fetch failures

package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/codex-http-server/internal/codex"
)

type sliceSource struct {
	events []codex.Event
	err    error
	calls  int
}

func (s *sliceSource) Next(context.Context) (codex.Event, error) {
	s.calls++
	if len(s.events) == 0 {
		return codex.Event{}, s.err
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func drain(t *testing.T, src EventSource) []Frame {
	t.Helper()
	var frames []Frame
	for range 100 {
		frame, terminal := NextFrame(context.Background(), src)
		frames = append(frames, frame)
		if terminal {
			return frames
		}
	}
	t.Fatal("stream never terminated")
	return nil
}

func decodePayload(t *testing.T, f Frame) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	return got
}

func TestNextFrame_OrderAndTermination(t *testing.T) {
	last := "Hello!"
	src := &sliceSource{events: []codex.Event{
		{ID: "0", Msg: codex.SessionConfigured{SessionID: "s"}},
		{ID: "1", Msg: codex.TaskStarted{}},
		{ID: "1", Msg: codex.AgentMessage{Message: "Hello!"}},
		{ID: "1", Msg: codex.TaskComplete{LastAgentMessage: &last}},
		{ID: "1", Msg: codex.AgentMessage{Message: "never read"}},
	}}

	frames := drain(t, src)

	require.Len(t, frames, 4)
	assert.Equal(t, 4, src.calls, "adapter must not read past the terminal event")
	wantTypes := []codex.EventType{
		codex.EventSessionConfigured,
		codex.EventTaskStarted,
		codex.EventAgentMessage,
		codex.EventTaskComplete,
	}
	for i, f := range frames {
		assert.Equal(t, LabelData, f.Label)
		assert.Equal(t, wantTypes[i], f.Type)
	}

	payload := decodePayload(t, frames[2])
	assert.Equal(t, "data", payload["event"])
	data := payload["data"].(map[string]any)
	assert.Equal(t, "1", data["id"])
	msg := data["msg"].(map[string]any)
	assert.Equal(t, "agent_message", msg["type"])
	assert.Equal(t, "Hello!", msg["message"])
}

func TestNextFrame_ErrorEventIsTerminal(t *testing.T) {
	src := &sliceSource{events: []codex.Event{
		{ID: "1", Msg: codex.TaskStarted{}},
		{ID: "1", Msg: codex.ErrorEvent{Message: "model refused"}},
	}}

	frames := drain(t, src)

	require.Len(t, frames, 2)
	assert.Equal(t, LabelData, frames[1].Label)
	assert.Equal(t, codex.EventError, frames[1].Type)
}

func TestNextFrame_FetchFailure(t *testing.T) {
	src := &sliceSource{
		events: []codex.Event{{ID: "0", Msg: codex.SessionConfigured{}}},
		err:    errors.New("engine crashed"),
	}

	frames := drain(t, src)

	require.Len(t, frames, 2)
	assert.Equal(t, LabelError, frames[1].Label)
	assert.Empty(t, frames[1].Type)
	assert.JSONEq(t, `{"event":"error","data":{"error":"engine crashed"}}`, string(frames[1].Payload))
}

func TestFrameWriteTo(t *testing.T) {
	var buf bytes.Buffer

	data := Frame{Label: LabelData, Payload: []byte(`{"event":"data","data":{}}`)}
	n, err := data.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"event\":\"data\",\"data\":{}}\n\n", buf.String())
	assert.Equal(t, int64(buf.Len()), n)

	buf.Reset()
	errFrame := ErrorFrame(errors.New("boom"))
	_, err = errFrame.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "event: error\ndata: {\"event\":\"error\",\"data\":{\"error\":\"boom\"}}\n\n", buf.String())
}

func TestDataFrame_UnencodableEvent(t *testing.T) {
	f := DataFrame(codex.Event{ID: "1"})
	assert.JSONEq(t, `{"event":"data","data":null}`, string(f.Payload))
}

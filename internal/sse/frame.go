// ABOUTME: Converts session events into SSE frames and writes them to the wire.
// ABOUTME: Payloads use the {"event":label,"data":...} envelope.

package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/2389/codex-http-server/internal/codex"
)

// Frame labels.
const (
	LabelData  = "data"
	LabelError = "error"
)

// EventSource yields a session's events in order.
type EventSource interface {
	Next(ctx context.Context) (codex.Event, error)
}

// Frame is one SSE record. Type is the event's discriminator for data frames
// and empty for error frames.
type Frame struct {
	Label   string
	Type    codex.EventType
	Payload []byte
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NextFrame fetches the next event from src and converts it into a frame. It
// reports whether the frame ends the stream: a TaskComplete or Error event, or
// a failure to fetch the event at all.
func NextFrame(ctx context.Context, src EventSource) (Frame, bool) {
	ev, err := src.Next(ctx)
	if err != nil {
		return ErrorFrame(err), true
	}
	return DataFrame(ev), ev.IsTerminal()
}

// DataFrame wraps ev in a data frame. An event that cannot be encoded is sent
// with null data rather than dropped.
func DataFrame(ev codex.Event) Frame {
	payload, err := json.Marshal(envelope{Event: LabelData, Data: ev})
	if err != nil {
		payload, _ = json.Marshal(envelope{Event: LabelData})
	}
	return Frame{Label: LabelData, Type: ev.Type(), Payload: payload}
}

// ErrorFrame reports a failure to fetch the next event.
func ErrorFrame(err error) Frame {
	payload, _ := json.Marshal(envelope{
		Event: LabelError,
		Data:  map[string]string{"error": err.Error()},
	})
	return Frame{Label: LabelError, Payload: payload}
}

// WriteTo writes the frame in SSE wire format. Data frames use the default
// "message" event; error frames are tagged "event: error".
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	var n int
	var err error
	if f.Label == LabelError {
		n, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Label, f.Payload)
	} else {
		n, err = fmt.Fprintf(w, "data: %s\n\n", f.Payload)
	}
	return int64(n), err
}

// ABOUTME: Operations submitted to agent sessions and the events they emit.
// ABOUTME: Events serialize with a flattened, "type"-tagged message object.

package codex

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AskForApproval controls when the agent must ask before running a command.
type AskForApproval string

const (
	ApprovalNever             AskForApproval = "never"
	ApprovalAutoEdit          AskForApproval = "auto-edit"
	ApprovalUnlessAllowListed AskForApproval = "unless-allow-listed"
	ApprovalOnFailure         AskForApproval = "on-failure"
)

// DefaultApprovalPolicy is used when neither config.toml nor the environment set one.
const DefaultApprovalPolicy = ApprovalUnlessAllowListed

// ParseAskForApproval maps one of the four recognized literals to a policy.
// The second return value is false for anything else, including "".
func ParseAskForApproval(s string) (AskForApproval, bool) {
	switch AskForApproval(s) {
	case ApprovalNever, ApprovalAutoEdit, ApprovalUnlessAllowListed, ApprovalOnFailure:
		return AskForApproval(s), true
	default:
		return "", false
	}
}

// OpType identifies an operation submitted to a session.
type OpType string

const (
	OpUserInput OpType = "user_input"
	OpInterrupt OpType = "interrupt"
)

// InputItemType identifies the kind of an input item.
type InputItemType string

const InputText InputItemType = "text"

// InputItem is one piece of user input.
type InputItem struct {
	Type InputItemType `json:"type"`
	Text string        `json:"text,omitempty"`
}

// TextInput returns a text input item.
func TextInput(text string) InputItem {
	return InputItem{Type: InputText, Text: text}
}

// Op is an instruction submitted into a session.
type Op struct {
	Type  OpType      `json:"type"`
	Items []InputItem `json:"items,omitempty"`
}

// UserInput builds the operation that starts a turn.
func UserInput(items ...InputItem) Op {
	return Op{Type: OpUserInput, Items: items}
}

// Interrupt builds the operation that aborts the running turn.
func Interrupt() Op {
	return Op{Type: OpInterrupt}
}

// EventType is the "type" discriminator of a serialized EventMsg.
type EventType string

const (
	EventSessionConfigured EventType = "session_configured"
	EventTaskStarted       EventType = "task_started"
	EventAgentMessageDelta EventType = "agent_message_delta"
	EventAgentMessage      EventType = "agent_message"
	EventTokenCount        EventType = "token_count"
	EventBackgroundEvent   EventType = "background_event"
	EventTaskComplete      EventType = "task_complete"
	EventError             EventType = "error"
)

// EventMsg is the payload of an Event.
type EventMsg interface {
	EventType() EventType
}

// SessionConfigured is the first event of every session.
type SessionConfigured struct {
	SessionID      string         `json:"session_id"`
	Model          string         `json:"model"`
	ModelProvider  string         `json:"model_provider"`
	ApprovalPolicy AskForApproval `json:"approval_policy"`
	Cwd            string         `json:"cwd"`
}

// TaskStarted marks the beginning of a turn.
type TaskStarted struct{}

// AgentMessageDelta carries one streamed fragment of the agent's reply.
type AgentMessageDelta struct {
	Delta string `json:"delta"`
}

// AgentMessage carries the agent's complete reply.
type AgentMessage struct {
	Message string `json:"message"`
}

// TokenCount reports model usage for the turn.
type TokenCount struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// BackgroundEvent is an informational notice from the engine.
type BackgroundEvent struct {
	Message string `json:"message"`
}

// TaskComplete ends a turn successfully.
type TaskComplete struct {
	LastAgentMessage *string `json:"last_agent_message"`
}

// ErrorEvent ends a turn with a failure.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (SessionConfigured) EventType() EventType { return EventSessionConfigured }
func (TaskStarted) EventType() EventType       { return EventTaskStarted }
func (AgentMessageDelta) EventType() EventType { return EventAgentMessageDelta }
func (AgentMessage) EventType() EventType      { return EventAgentMessage }
func (TokenCount) EventType() EventType        { return EventTokenCount }
func (BackgroundEvent) EventType() EventType   { return EventBackgroundEvent }
func (TaskComplete) EventType() EventType      { return EventTaskComplete }
func (ErrorEvent) EventType() EventType        { return EventError }

// Event is one message emitted by a session. ID is the submission the event
// belongs to ("" for events not tied to a submission).
type Event struct {
	ID  string
	Msg EventMsg
}

// Type returns the event's discriminator, or "" when Msg is nil.
func (e Event) Type() EventType {
	if e.Msg == nil {
		return ""
	}
	return e.Msg.EventType()
}

// IsTerminal reports whether the event ends a turn.
func (e Event) IsTerminal() bool {
	switch e.Msg.(type) {
	case TaskComplete, *TaskComplete, ErrorEvent, *ErrorEvent:
		return true
	default:
		return false
	}
}

// MarshalJSON flattens Msg into an object tagged with its "type".
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Msg == nil {
		return nil, errors.New("codex: event has no message")
	}

	body, err := json.Marshal(e.Msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", e.Msg.EventType(), err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%s does not serialize to an object: %w", e.Msg.EventType(), err)
	}

	tag, err := json.Marshal(e.Msg.EventType())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag

	msg, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	return json.Marshal(struct {
		ID  string          `json:"id"`
		Msg json.RawMessage `json:"msg"`
	}{ID: e.ID, Msg: msg})
}

// Package event defines the typed lifecycle events emitted while a council
// run is streaming.
package event

import (
	"encoding/json"
	"time"

	"github.com/nerv-labs/magi/internal/domain/decision"
)

// Type identifies the kind of stream event.
type Type string

const (
	TypeStart         Type = "start"
	TypeAgentStart    Type = "agent_start"
	TypeAgentThinking Type = "agent_thinking" // incremental text delta
	TypeAgentChunk    Type = "agent_chunk"    // full accumulated worker text
	TypeAgentTimeout  Type = "agent_timeout"  // deadline fired; carries partial text
	TypeAgentComplete Type = "agent_complete"
	TypeJudgeStart    Type = "judge_start"
	TypeJudgeThinking Type = "judge_thinking"
	TypeJudgeChunk    Type = "judge_chunk"
	TypeJudgeComplete Type = "judge_complete"
	TypeComplete      Type = "complete"
	TypeError         Type = "error"
)

// Event is the envelope every consumer sees. Consumers must treat unknown
// types as ignorable.
type Event struct {
	Type      Type             `json:"type"`
	SourceID  decision.AgentID `json:"source_id,omitempty"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// TextPayload carries streamed text for thinking and chunk events.
type TextPayload struct {
	Text string `json:"text"`
}

// StartPayload frames the beginning of a run.
type StartPayload struct {
	RequestID string `json:"request_id"`
	TraceID   string `json:"trace_id"`
	Question  string `json:"question"`
}

// AgentStartPayload announces one agent's turn.
type AgentStartPayload struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// TimeoutPayload carries whatever partial text accumulated before a
// worker's deadline fired.
type TimeoutPayload struct {
	PartialText string `json:"partial_text,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// ErrorPayload reports a contained failure.
type ErrorPayload struct {
	Error string `json:"error"`
}

// New builds an Event, marshaling the payload. Marshal failures yield an
// event with an empty payload rather than an error; every payload type in
// this package marshals cleanly.
func New(t Type, source decision.AgentID, payload any) Event {
	ev := Event{
		Type:      t,
		SourceID:  source,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// Sink receives stream events in emission order. Implementations must not
// block for long; slow consumers stall the feed.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

// Emit calls f.
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard is a Sink that drops every event. Used by non-streaming callers.
var Discard Sink = SinkFunc(func(Event) {})

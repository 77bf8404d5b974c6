// Package protocol implements the typed event stream for a session:
// monotonic event ids, a single-sender outbound queue, delivery
// acknowledgment tracking, and a best-effort pub/sub mirror.
package protocol

import (
	"encoding/json"
	"time"
)

// EventType enumerates the wire event types.
type EventType string

const (
	EventInfo        EventType = "info"         // lifecycle stage markers
	EventAction      EventType = "action"       // progress narration
	EventAgentResult EventType = "agent_result" // one worker's outcome
	EventDebug       EventType = "debug"        // prompts/rationale for observability
	EventFinal       EventType = "final"        // terminal answer, exactly one per run
	EventError       EventType = "error"        // terminal failure, mutually exclusive with final
)

// Event is the wire envelope. Events are append-only: once emitted they
// are never mutated or retracted.
type Event struct {
	Type        EventType `json:"type"`
	EID         uint64    `json:"eid"`
	Payload     any       `json:"payload"`
	RequiresAck bool      `json:"requires_ack"`

	CreatedAt time.Time `json:"-"`
}

// Marshal renders the envelope as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Payload shapes. One struct per event type keeps the wire format
// explicit instead of ad hoc maps.

// InfoPayload marks a lifecycle stage, e.g. {stage: "submitted"}.
type InfoPayload struct {
	Stage string `json:"stage"`
}

// ActionPayload narrates progress, e.g. the plan rationale.
type ActionPayload struct {
	Function string `json:"function"`
	Text     string `json:"text"`
}

// AgentResultPayload reports one worker's outcome for the round.
type AgentResultPayload struct {
	AgentName  string   `json:"agent_name"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// DebugPayload carries the full prompt or rationale behind a decision,
// detailed enough to reconstruct why it was made.
type DebugPayload struct {
	Component string `json:"component"`
	Prompt    string `json:"prompt"`
}

// FinalPayload is the terminal answer (or clarifying question, with
// Function "clarify").
type FinalPayload struct {
	Function string `json:"function"`
	Text     string `json:"text"`
}

// ErrorPayload is the terminal failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ClientMessage is what the client sends back on the session: an ack for
// a previously delivered event, a new query, or a cancel.
type ClientMessage struct {
	EID     uint64 `json:"eid,omitempty"`
	Content string `json:"content,omitempty"`
	Action  string `json:"action,omitempty"`
}

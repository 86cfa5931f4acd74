package core

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes the two kinds of episodic memory units.
type EventType string

const (
	// EventTypeDecision marks raw model output recorded before parsing.
	EventTypeDecision EventType = "decision"
	// EventTypeMessage marks a message delivered to (or produced for) an agent.
	EventTypeMessage EventType = "message"
)

// MessageType categorizes a Message.
type MessageType string

const (
	// MessageTypeSpontaneous is an unsolicited message (user input, summaries, introductions).
	MessageTypeSpontaneous MessageType = "spontaneous"
	// MessageTypeOK reports that an action completed successfully.
	MessageTypeOK MessageType = "ok"
	// MessageTypeError reports a recoverable failure the agent can correct.
	MessageTypeError MessageType = "error"
	// MessageTypeAgentToAgent carries content sent by another agent.
	MessageTypeAgentToAgent MessageType = "agentToAgent"
)

// SourceType identifies who authored a Message.
type SourceType string

const (
	// SourceTypeUser is a human operator.
	SourceTypeUser SourceType = "user"
	// SourceTypeAgent is another (or the same) agent; Source.ID is set.
	SourceTypeAgent SourceType = "agent"
	// SourceTypeSystem is the runtime itself (introductions, summaries).
	SourceTypeSystem SourceType = "system"
)

// Source is the author of a Message.
type Source struct {
	Type SourceType `json:"type" cbor:"type"`
	ID   string     `json:"id,omitempty" cbor:"id,omitempty"`
}

// UserSource returns the source for operator supplied messages.
func UserSource() Source { return Source{Type: SourceTypeUser} }

// AgentSource returns the source for messages authored by agent id.
func AgentSource(id string) Source { return Source{Type: SourceTypeAgent, ID: id} }

// SystemSource returns the source for runtime generated messages.
func SystemSource() Source { return Source{Type: SourceTypeSystem} }

// Message is the wire shape exchanged over the MessageBus and stored in
// Message events.
type Message struct {
	Type           MessageType `json:"type" cbor:"type"`
	Source         Source      `json:"source" cbor:"source"`
	TargetAgentIDs []string    `json:"targetAgentIds" cbor:"targetAgentIds"`
	Content        string      `json:"content" cbor:"content"`
}

// Targets reports whether agentID is one of the message recipients.
func (m Message) Targets(agentID string) bool {
	return slices.Contains(m.TargetAgentIDs, agentID)
}

// NewMessage builds a message of the given type addressed to targets.
func NewMessage(typ MessageType, src Source, content string, targets ...string) Message {
	return Message{
		Type:           typ,
		Source:         src,
		TargetAgentIDs: append([]string{}, targets...),
		Content:        content,
	}
}

// OKMessage returns a system "ok" message for agentID.
func OKMessage(agentID, content string) Message {
	return NewMessage(MessageTypeOK, SystemSource(), content, agentID)
}

// ErrorMessage returns a system "error" message for agentID.
func ErrorMessage(agentID, content string) Message {
	return NewMessage(MessageTypeError, SystemSource(), content, agentID)
}

// UserMessage returns a spontaneous message from the operator to the given agents.
func UserMessage(content string, targets ...string) Message {
	return NewMessage(MessageTypeSpontaneous, UserSource(), content, targets...)
}

// AgentMessage returns an agent-to-agent message from one agent to others.
func AgentMessage(from, content string, targets ...string) Message {
	return NewMessage(MessageTypeAgentToAgent, AgentSource(from), content, targets...)
}

// Event is a single episodic memory unit: either a Decision carrying the raw
// model output, or a Message. After it has been appended to memory it should be
// treated as immutable.
type Event struct {
	ID         string    `json:"id" cbor:"id"`
	Type       EventType `json:"type" cbor:"type"`
	ActionText string    `json:"actionText,omitempty" cbor:"actionText,omitempty"`
	Message    *Message  `json:"message,omitempty" cbor:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp" cbor:"timestamp"`
}

// NewDecisionEvent records raw model output.
func NewDecisionEvent(actionText string) Event {
	return Event{
		ID:         NewID(),
		Type:       EventTypeDecision,
		ActionText: actionText,
		Timestamp:  time.Now().UTC(),
	}
}

// NewMessageEvent wraps msg in an Event.
func NewMessageEvent(msg Message) Event {
	m := msg
	m.TargetAgentIDs = append([]string{}, msg.TargetAgentIDs...)
	return Event{
		ID:        NewID(),
		Type:      EventTypeMessage,
		Message:   &m,
		Timestamp: time.Now().UTC(),
	}
}

// IsDecision reports whether the event is a Decision.
func (e Event) IsDecision() bool { return e.Type == EventTypeDecision }

// IsMessage reports whether the event is a Message of type t.
func (e Event) IsMessage(t MessageType) bool {
	return e.Type == EventTypeMessage && e.Message != nil && e.Message.Type == t
}

// Content returns the textual payload of the event.
func (e Event) Content() string {
	if e.IsDecision() {
		return e.ActionText
	}
	if e.Message != nil {
		return e.Message.Content
	}
	return ""
}

// NewID generates a new unique identifier for events and subscriptions.
func NewID() string { return uuid.NewString() }

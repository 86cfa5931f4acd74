package testutil

import (
	"time"

	"github.com/hupe1980/agentloop/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().ID("err-1").Error("bob", "bad action").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	id        string
	decision  *string
	message   *core.Message
	timestamp time.Time
}

// NewEventBuilder creates a builder that produces a noop Decision by default.
func NewEventBuilder() *EventBuilder { return &EventBuilder{} }

// ID overrides the auto-generated event ID (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// At sets the timestamp (chainable).
func (b *EventBuilder) At(ts time.Time) *EventBuilder { b.timestamp = ts; return b }

// Decision makes the event a Decision with the given raw text (chainable).
func (b *EventBuilder) Decision(text string) *EventBuilder {
	b.decision, b.message = &text, nil
	return b
}

// Message makes the event carry msg (chainable).
func (b *EventBuilder) Message(msg core.Message) *EventBuilder {
	b.message, b.decision = &msg, nil
	return b
}

// OK makes the event an ok Message for agentID (chainable).
func (b *EventBuilder) OK(agentID, content string) *EventBuilder {
	return b.Message(core.OKMessage(agentID, content))
}

// Error makes the event an error Message for agentID (chainable).
func (b *EventBuilder) Error(agentID, content string) *EventBuilder {
	return b.Message(core.ErrorMessage(agentID, content))
}

// User makes the event a spontaneous user Message (chainable).
func (b *EventBuilder) User(content string, targets ...string) *EventBuilder {
	return b.Message(core.UserMessage(content, targets...))
}

// From makes the event an agent-to-agent Message (chainable).
func (b *EventBuilder) From(agentID, content string, targets ...string) *EventBuilder {
	return b.Message(core.AgentMessage(agentID, content, targets...))
}

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	var ev core.Event
	switch {
	case b.message != nil:
		ev = core.NewMessageEvent(*b.message)
	case b.decision != nil:
		ev = core.NewDecisionEvent(*b.decision)
	default:
		ev = core.NewDecisionEvent("action: noop")
	}
	if b.id != "" {
		ev.ID = b.id
	}
	if !b.timestamp.IsZero() {
		ev.Timestamp = b.timestamp
	}
	return ev
}

// Decision is shorthand for a Decision event with a fixed id.
func Decision(id, text string) core.Event {
	return NewEventBuilder().ID(id).Decision(text).Build()
}

// ErrorEvent is shorthand for an error Message event with a fixed id.
func ErrorEvent(id, agentID, content string) core.Event {
	return NewEventBuilder().ID(id).Error(agentID, content).Build()
}

// OKEvent is shorthand for an ok Message event with a fixed id.
func OKEvent(id, agentID, content string) core.Event {
	return NewEventBuilder().ID(id).OK(agentID, content).Build()
}

// UserEvent is shorthand for a user Message event with a fixed id.
func UserEvent(id, content string, targets ...string) core.Event {
	return NewEventBuilder().ID(id).User(content, targets...).Build()
}

// IDs returns the ids of events in order.
func IDs(events []core.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

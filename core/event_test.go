package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDecisionEvent(t *testing.T) {
	e := NewDecisionEvent("action: noop")

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.True(t, e.IsDecision())
	assert.False(t, e.IsMessage(MessageTypeOK))
	assert.Equal(t, "action: noop", e.Content())
}

func TestNewMessageEvent_CopiesTargets(t *testing.T) {
	msg := OKMessage("alice", "done")
	e := NewMessageEvent(msg)

	msg.TargetAgentIDs[0] = "mallory"

	require.NotNil(t, e.Message)
	assert.Equal(t, []string{"alice"}, e.Message.TargetAgentIDs)
	assert.True(t, e.IsMessage(MessageTypeOK))
	assert.False(t, e.IsDecision())
	assert.Equal(t, "done", e.Content())
}

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, Message{Type: MessageTypeError, Source: SystemSource(), TargetAgentIDs: []string{"a"}, Content: "x"}, ErrorMessage("a", "x"))
	assert.Equal(t, SourceTypeUser, UserMessage("hi", "a", "b").Source.Type)

	m := AgentMessage("alice", "ping", "bob")
	assert.Equal(t, MessageTypeAgentToAgent, m.Type)
	assert.Equal(t, AgentSource("alice"), m.Source)
	assert.True(t, m.Targets("bob"))
	assert.False(t, m.Targets("alice"))
}

func TestMessage_WireShape(t *testing.T) {
	data, err := json.Marshal(UserMessage("hello", "alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"spontaneous","source":{"type":"user"},"targetAgentIds":["alice"],"content":"hello"}`, string(data))

	data, err = json.Marshal(AgentMessage("bob", "ping", "alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"agentToAgent","source":{"type":"agent","id":"bob"},"targetAgentIds":["alice"],"content":"ping"}`, string(data))
}

func TestEvent_ZeroContent(t *testing.T) {
	assert.Equal(t, "", Event{Type: EventTypeMessage}.Content())
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

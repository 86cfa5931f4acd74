package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func TestBuildMessages_MergesConsecutiveRoles(t *testing.T) {
	events := []core.Event{
		core.NewMessageEvent(core.NewMessage(core.MessageTypeSpontaneous, core.SystemSource(), "intro", "a")),
		core.NewMessageEvent(core.UserMessage("hello", "a")),
		core.NewDecisionEvent("action: noop"),
		core.NewMessageEvent(core.ErrorMessage("a", "oops")),
	}

	msgs := buildMessages(events)
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Len(t, msgs[0].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(func(o *Options) { o.APIKey = "test"; o.MaxTokens = 128 })
	assert.Equal(t, int64(128), c.opts.MaxTokens)
	assert.Equal(t, anthropic.ModelClaude3_5Sonnet20241022, c.opts.Model)
}

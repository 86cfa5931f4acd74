package completion

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// Roles used in formatted messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FormattedMessage is the model facing representation of an event.
type FormattedMessage struct {
	Role    string
	Content string
}

// FormatEvent renders e for a model request. Decisions are assistant turns;
// every Message is a user turn. Agent-to-agent messages carry a MESSAGE FROM
// header and error messages an ERROR header. All other events are unheaded.
func FormatEvent(e core.Event) FormattedMessage {
	if e.IsDecision() {
		return FormattedMessage{Role: RoleAssistant, Content: e.ActionText}
	}
	if e.Message == nil {
		return FormattedMessage{Role: RoleUser}
	}

	msg := e.Message
	switch msg.Type {
	case core.MessageTypeAgentToAgent:
		return FormattedMessage{Role: RoleUser, Content: header("MESSAGE FROM "+sourceName(msg.Source), msg.Content)}
	case core.MessageTypeError:
		return FormattedMessage{Role: RoleUser, Content: header("ERROR", msg.Content)}
	default:
		return FormattedMessage{Role: RoleUser, Content: msg.Content}
	}
}

// FormatEvents renders events preserving order.
func FormatEvents(events []core.Event) []FormattedMessage {
	out := make([]FormattedMessage, len(events))
	for i, e := range events {
		out[i] = FormatEvent(e)
	}
	return out
}

func header(title, content string) string {
	return fmt.Sprintf("--- %s ---\n\n%s", title, content)
}

func sourceName(src core.Source) string {
	switch src.Type {
	case core.SourceTypeAgent:
		return src.ID
	case core.SourceTypeUser:
		return "USER"
	default:
		return "SYSTEM"
	}
}

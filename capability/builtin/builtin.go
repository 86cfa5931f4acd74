// Package builtin provides the "core" capability module every agent carries:
// an introduction listing the agent's identity and the available actions, plus
// the noop and help actions.
package builtin

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/capability"
)

// ModuleName is the name of the built-in module.
const ModuleName = "core"

// SeedActionText is the decision every new agent starts with.
const SeedActionText = "action: noop"

// Core returns the built-in capability module.
func Core() *capability.Module {
	return &capability.Module{
		Name:          ModuleName,
		PinnedMessage: pinnedMessage,
		Actions: map[string]*capability.ActionDefinition{
			"noop": {
				Description: "Do nothing",
				Handler:     func(map[string]string, *capability.ActionContext) error { return nil },
			},
			"help": {
				Description: "Get help using a specific action",
				Parameters: map[string]capability.ParameterDefinition{
					"aboutAction": {Description: "the name of an action to get help with"},
				},
				Handler: help,
			},
		},
	}
}

func pinnedMessage(pctx *capability.PinnedContext) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "You are agent %s.", pctx.AgentID)

	var others []string
	for _, id := range pctx.AllAgentIDs {
		if id != pctx.AgentID {
			others = append(others, id)
		}
	}
	if len(others) > 0 {
		fmt.Fprintf(&b, " The other agents are: %s.", strings.Join(others, ", "))
	}

	b.WriteString("\n\nEvery response you give must be exactly one action in this format:\n\n")
	b.WriteString("```\naction: <action name>\nthoughts: <reasoning behind this action> (optional)\n<parameter>: <value>\n```\n\n")
	b.WriteString("Multi-line values use a `|` followed by lines indented by two spaces.\n\n")
	b.WriteString("Available actions:\n")

	if pctx.Registry != nil {
		for _, def := range pctx.Registry.Actions() {
			fmt.Fprintf(&b, "\n- %s: %s", def.Name, def.Description)
		}
	}

	return b.String(), nil
}

func help(params map[string]string, actx *capability.ActionContext) error {
	name, ok := params["aboutAction"]
	if !ok || name == "" {
		return actx.Reply(actionList(actx.Registry()))
	}

	def, ok := actx.Registry().Action(name)
	if !ok {
		return fmt.Errorf("unknown action %q, valid actions are: %s", name, strings.Join(actx.Registry().ActionNames(), ", "))
	}

	return actx.Reply(fmt.Sprintf("Usage:\n\n```\n%s\n```", def.Usage()))
}

func actionList(r *capability.Registry) string {
	var b strings.Builder
	b.WriteString("Available actions:\n")
	for _, def := range r.Actions() {
		fmt.Fprintf(&b, "\n- %s: %s", def.Name, def.Description)
	}
	return b.String()
}

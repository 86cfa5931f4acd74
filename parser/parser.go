// Package parser recovers structured actions from free-form model output.
//
// The accepted grammar is a small, line oriented key/value format:
//
//	action: addGoal
//	thoughts: |
//	  I should write this down
//	  before I forget.
//	goal: Ship v1
//
// The first non-blank line names the action (`action:` or `name:`). Every
// following line is a `key: value` pair. A value of `|` opens a block whose
// content is every following line indented two spaces relative to its key,
// with internal blank lines preserved and the shared indent stripped.
//
// Parse is a pure function of (registry, text): identical inputs always yield
// identical results.
package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agentloop/capability"
)

// Registry is the subset of *capability.Registry the parser needs.
type Registry interface {
	Action(name string) (*capability.ActionDefinition, bool)
	ActionNames() []string
}

// Action is a validated action call.
type Action struct {
	Definition *capability.ActionDefinition
	// Thoughts is empty when the model did not supply any.
	Thoughts   string
	Parameters map[string]string
}

// Name returns the name of the resolved action.
func (a *Action) Name() string { return a.Definition.Name }

const thoughtsKey = "thoughts"

// Parse validates text against registry. On failure the returned error is a
// *ParseError whose message tells the agent how to correct itself.
func Parse(registry Registry, text string) (*Action, error) {
	fields, err := parseFields(text)
	if err != nil {
		return nil, malformed(registry, err.Error())
	}

	name := fields[0].value
	def, ok := registry.Action(name)
	if !ok {
		return nil, &ParseError{
			Kind: UnknownAction,
			Message: fmt.Sprintf(
				"Unknown action `%s`. Please refer to the list of available actions given in the introductory message. Valid actions are: %s.",
				name, strings.Join(registry.ActionNames(), ", "),
			),
		}
	}

	action := &Action{Definition: def, Parameters: make(map[string]string, len(fields)-1)}
	for _, f := range fields[1:] {
		if f.key == thoughtsKey {
			action.Thoughts = f.value
			continue
		}
		action.Parameters[f.key] = f.value
	}

	for _, param := range def.ParameterNames() {
		if !def.Parameters[param].Required {
			continue
		}
		if _, ok := action.Parameters[param]; !ok {
			return nil, &ParseError{
				Kind:    MissingParameter,
				Message: fmt.Sprintf("Missing required parameter `%s`. %s", param, usage(def)),
			}
		}
	}

	keys := make([]string, 0, len(action.Parameters))
	for k := range action.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := def.Parameters[k]; !ok {
			return nil, &ParseError{
				Kind:    UnexpectedParameter,
				Message: fmt.Sprintf("Extraneous parameter `%s`. %s", k, usage(def)),
			}
		}
	}

	return action, nil
}

func usage(def *capability.ActionDefinition) string {
	return fmt.Sprintf("Usage:\n\n```\n%s\n```", def.Usage())
}

func malformed(registry Registry, detail string) *ParseError {
	return &ParseError{
		Kind: MalformedInput,
		Message: fmt.Sprintf(
			"Your action could not be parsed (%s). Remember to always format your entire response as an action, like this:\n\n"+
				"```\naction: <action name>\n<parameter name>: <parameter value>\n...\n```\n\nValid actions are: %s.",
			detail, strings.Join(registry.ActionNames(), ", "),
		),
	}
}

// Package capability implements the static capability table consulted by the
// parser, the dispatcher and the memory manager. A capability Module bundles
// one or more actions, optional per-agent state and optional pinned text that
// is always shown to the model.
package capability

import (
	"fmt"
	"sort"
	"strings"
)

// ParameterDefinition declares a single action parameter.
type ParameterDefinition struct {
	Description string
	Required    bool
}

// Handler executes an action with its already validated parameters.
type Handler func(params map[string]string, actx *ActionContext) error

// ActionDefinition describes an action exposed to the model.
type ActionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]ParameterDefinition
	Handler     Handler
}

// ParameterNames returns the declared parameter names in alphabetical order.
func (d *ActionDefinition) ParameterNames() []string {
	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage renders the action in the format the parser accepts, for example:
//
//	action: addGoal
//	thoughts: <reasoning behind this action> (optional)
//	goal: <the goal to add>
func (d *ActionDefinition) Usage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "action: %s\n", d.Name)
	b.WriteString("thoughts: <reasoning behind this action> (optional)")
	for _, name := range d.ParameterNames() {
		p := d.Parameters[name]
		fmt.Fprintf(&b, "\n%s: <%s>", name, p.Description)
		if !p.Required {
			b.WriteString(" (optional)")
		}
	}
	return b.String()
}

// Module is a capability descriptor. CreateState and PinnedMessage are optional.
//
// PinnedMessage is evaluated on every memory retrieval; returning an empty
// string contributes nothing to the introduction.
type Module struct {
	Name          string
	CreateState   func(agentID string) (any, error)
	PinnedMessage func(pctx *PinnedContext) (string, error)
	Actions       map[string]*ActionDefinition
}

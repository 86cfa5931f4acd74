package capability

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// SendFunc publishes a message on behalf of an agent.
type SendFunc func(ctx context.Context, msg core.Message) error

// Environment is the agent-scoped information shared by every action and
// pinned-message invocation.
type Environment struct {
	AgentID     string
	AllAgentIDs []string
	Registry    *Registry
	Send        SendFunc
	Logger      logging.Logger
}

// ActionContext is the surface an action handler sees: agent identity, the
// full registry for introspection, the owning module's state and a bound
// send function targeting the message bus.
type ActionContext struct {
	ctx   context.Context
	env   Environment
	state any
}

// NewActionContext binds env and the module state to a single invocation.
func NewActionContext(ctx context.Context, env Environment, state any) *ActionContext {
	if env.Logger == nil {
		env.Logger = logging.NoOpLogger{}
	}
	return &ActionContext{ctx: ctx, env: env, state: state}
}

// Context returns the context of the current tick.
func (c *ActionContext) Context() context.Context { return c.ctx }

// AgentID returns the id of the acting agent.
func (c *ActionContext) AgentID() string { return c.env.AgentID }

// AllAgentIDs returns a copy of every known agent id.
func (c *ActionContext) AllAgentIDs() []string {
	return append([]string(nil), c.env.AllAgentIDs...)
}

// Registry returns the capability registry.
func (c *ActionContext) Registry() *Registry { return c.env.Registry }

// State returns the owning module's state handle (nil if the module has none).
func (c *ActionContext) State() any { return c.state }

// Logger returns the logger associated with the invocation.
func (c *ActionContext) Logger() logging.Logger { return c.env.Logger }

// SendMessage publishes msg through the bound send function.
func (c *ActionContext) SendMessage(msg core.Message) error {
	if c.env.Send == nil {
		return fmt.Errorf("send function not configured")
	}
	return c.env.Send(c.ctx, msg)
}

// Reply sends an "ok" message back to the acting agent.
func (c *ActionContext) Reply(content string) error {
	return c.SendMessage(core.OKMessage(c.env.AgentID, content))
}

// PinnedContext is passed to Module.PinnedMessage.
type PinnedContext struct {
	AgentID     string
	AllAgentIDs []string
	Registry    *Registry
	State       any
}

type stateKey struct {
	agentID string
	module  string
}

// States lazily creates and holds module state keyed by (agent id, module
// name). The zero value is not usable; call NewStates.
type States struct {
	mu     sync.Mutex
	values map[stateKey]any
}

// NewStates creates an empty state container.
func NewStates() *States {
	return &States{values: make(map[stateKey]any)}
}

// Get returns the state for (agentID, m.Name), creating it on first use. A
// module without CreateState has a nil state.
func (s *States) Get(agentID string, m *Module) (any, error) {
	if m.CreateState == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := stateKey{agentID: agentID, module: m.Name}
	if v, ok := s.values[key]; ok {
		return v, nil
	}

	v, err := m.CreateState(agentID)
	if err != nil {
		return nil, fmt.Errorf("create state for module %q: %w", m.Name, err)
	}
	s.values[key] = v

	return v, nil
}

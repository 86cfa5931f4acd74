// Package dispatch executes validated actions against their owning capability
// module. Handler faults (returned errors as well as panics) are converted to
// error Messages for the acting agent and never escape to the control loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/parser"
)

// Options configure a Dispatcher.
type Options struct {
	AgentID     string
	AllAgentIDs []string
	// Send is bound into every ActionContext. Usually MessageBus.Send.
	Send capability.SendFunc
	// States holds lazily created module state. A private container is
	// created when nil.
	States *capability.States
	Logger logging.Logger
}

// Dispatcher resolves actions for a single agent.
type Dispatcher struct {
	registry *capability.Registry
	opts     Options
}

// New creates a Dispatcher for one agent.
func New(registry *capability.Registry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.States == nil {
		opts.States = capability.NewStates()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	opts.AllAgentIDs = append([]string(nil), opts.AllAgentIDs...)

	return &Dispatcher{registry: registry, opts: opts}
}

// Execute runs the handler of action. It returns nil on success and an error
// Message addressed to the agent when the handler fails or panics.
func (d *Dispatcher) Execute(ctx context.Context, action *parser.Action) *core.Message {
	name := action.Name()

	module, ok := d.registry.Owner(name)
	if !ok {
		return d.fault(name, fmt.Errorf("no capability module declares action %q", name))
	}

	state, err := d.opts.States.Get(d.opts.AgentID, module)
	if err != nil {
		return d.fault(name, err)
	}

	actx := capability.NewActionContext(ctx, d.environment(), state)

	d.opts.Logger.Debug("dispatch.action.start", "agent", d.opts.AgentID, "module", module.Name, "action", name)

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		err = action.Definition.Handler(copyParams(action.Parameters), actx)
	}()

	logging.Action(d.opts.Logger, name, time.Since(start), err)
	if err != nil {
		return d.fault(name, err)
	}

	return nil
}

// PinnedText concatenates the pinned text of every module in registration
// order, skipping modules without (or with empty) pinned text.
func (d *Dispatcher) PinnedText(_ context.Context) (string, error) {
	var parts []string

	for _, m := range d.registry.Modules() {
		if m.PinnedMessage == nil {
			continue
		}

		state, err := d.opts.States.Get(d.opts.AgentID, m)
		if err != nil {
			return "", err
		}

		text, err := m.PinnedMessage(&capability.PinnedContext{
			AgentID:     d.opts.AgentID,
			AllAgentIDs: append([]string(nil), d.opts.AllAgentIDs...),
			Registry:    d.registry,
			State:       state,
		})
		if err != nil {
			return "", fmt.Errorf("pinned message of module %q: %w", m.Name, err)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

func (d *Dispatcher) environment() capability.Environment {
	return capability.Environment{
		AgentID:     d.opts.AgentID,
		AllAgentIDs: d.opts.AllAgentIDs,
		Registry:    d.registry,
		Send:        d.opts.Send,
		Logger:      d.opts.Logger,
	}
}

func (d *Dispatcher) fault(action string, err error) *core.Message {
	var pe *PanicError
	if errors.As(err, &pe) {
		d.logPanic(action, pe)

		msg := core.ErrorMessage(d.opts.AgentID, fmt.Sprintf("Action `%s` crashed: %v", action, pe.Value))
		return &msg
	}

	d.opts.Logger.Warn("dispatch.action.fault", "agent", d.opts.AgentID, "action", action, "error", err.Error())

	msg := core.ErrorMessage(d.opts.AgentID, fmt.Sprintf("Action `%s` failed: %v", action, err))
	return &msg
}

func (d *Dispatcher) logPanic(action string, pe *PanicError) {
	if al, ok := d.opts.Logger.(*logging.AgentLogger); ok {
		al.ErrorWithStack(pe, "dispatch.action.panic", "agent", d.opts.AgentID, "action", action)
		return
	}
	d.opts.Logger.Error("dispatch.action.panic", "agent", d.opts.AgentID, "action", action, "error", pe.Error(), "stack_trace", string(pe.Stack))
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic: %v", p.Value) }

// StackTrace returns the stack of the panicking goroutine.
func (p *PanicError) StackTrace() []byte { return p.Stack }

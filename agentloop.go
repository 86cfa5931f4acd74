// Package agentloop provides a high-level façade over the engine for running
// autonomous agents that decide their next action through an LLM while
// keeping their memory bounded. Most applications interact with this package
// by:
//  1. Creating an AgentLoop via New() with the agent ids and capability modules
//  2. Sending user messages to agents (Tell or Send)
//  3. Running the loops until the context is cancelled (Run)
//
// All defaults are in-process (mock completion client, in-memory store and
// bus) so the façade works out of the box for tests and experiments.
// Production deployments supply a real completion client and a durable store.
package agentloop

import (
	"context"
	"log/slog"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
)

// Options configures the AgentLoop instance.
type Options struct {
	// EngineConfig holds the per-agent tuning parameters.
	EngineConfig engine.Config

	// AgentIDs lists the agents to run.
	AgentIDs []string

	// Modules are the capability modules offered to every agent in addition
	// to the built-in core module.
	Modules []*capability.Module

	// Collaborators (in-process defaults when nil)
	Client core.CompletionClient
	Store  core.Store
	Bus    core.MessageBus
	Codec  memory.Codec

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Slog is used through logging.NewSlogAdapter when Logger is nil.
	Slog *slog.Logger
}

// AgentLoop is the high-level façade over engine.Engine.
type AgentLoop struct {
	opts   Options
	engine *engine.Engine
}

// New creates an AgentLoop. It fails when the agent ids or modules are invalid.
func New(optFns ...func(o *Options)) (*AgentLoop, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		if opts.Slog != nil {
			opts.Logger = logging.NewSlogAdapter(opts.Slog)
		} else {
			opts.Logger = logging.NoOpLogger{}
		}
	}

	e, err := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.AgentIDs = opts.AgentIDs
		o.Modules = opts.Modules
		o.Client = opts.Client
		o.Store = opts.Store
		o.Bus = opts.Bus
		o.Codec = opts.Codec
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &AgentLoop{opts: opts, engine: e}, nil
}

// Run blocks until ctx is cancelled and every agent stopped.
func (l *AgentLoop) Run(ctx context.Context) error { return l.engine.Run(ctx) }

// Send publishes msg to its target agents.
func (l *AgentLoop) Send(ctx context.Context, msg core.Message) error {
	return l.engine.Send(ctx, msg)
}

// Tell sends a user message to the given agents.
func (l *AgentLoop) Tell(ctx context.Context, content string, agentIDs ...string) error {
	return l.engine.Send(ctx, core.UserMessage(content, agentIDs...))
}

// Events returns the current memory snapshot of an agent, Introduction first.
func (l *AgentLoop) Events(ctx context.Context, agentID string) ([]core.Event, error) {
	return l.engine.Events(ctx, agentID)
}

// OnStoreFault registers fn to be called when an agent stops on a store fault.
func (l *AgentLoop) OnStoreFault(fn func(agentID string, err error)) {
	l.engine.RegisterCallback(engine.NewFunctionCallback(engine.CallbackStoreFault, func(_ context.Context, c *engine.CallbackContext) error {
		fn(c.AgentID, c.Err)
		return nil
	}))
}

// Engine exposes the underlying engine.
func (l *AgentLoop) Engine() *engine.Engine { return l.engine }

// Close releases the bus subscriptions.
func (l *AgentLoop) Close() error { return l.engine.Close() }

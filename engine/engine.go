package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/bus"
	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/capability/builtin"
	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/dispatch"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/store"
)

// ErrAlreadyRunning is returned by Run when the engine is already active.
var ErrAlreadyRunning = errors.New("engine already running")

// Config defines the tuning parameters applied to every agent.
//
// Zero values fall back to the package defaults of the component that owns
// the setting, so a partially filled Config is valid.
//
// Example:
//
//	cfg := engine.DefaultConfig
//	cfg.Model = "claude-sonnet-4-5"
//	cfg.ContextWindowSize = 200_000
type Config struct {
	// TickInterval is the period of each agent's decision timer.
	TickInterval time.Duration

	// Model is passed to the completion client for decisions and summaries.
	// Empty leaves the choice to the client.
	Model string

	// MaxTokens caps each decision completion. Zero leaves it to the client.
	MaxTokens int

	// ContextWindowSize is the token budget of the model. Summarization
	// starts above 75% of it.
	ContextWindowSize int

	// SummaryMaxTokens caps each summary completion.
	SummaryMaxTokens int

	// SummaryPreamble prefixes every summary event. Empty uses the memory default.
	SummaryPreamble string

	// SummaryInstruction is the template asking for a summary. Empty uses
	// the memory default.
	SummaryInstruction string
}

// DefaultConfig provides defaults suited to a local run with the mock client.
var DefaultConfig = Config{
	TickInterval:      time.Second,
	ContextWindowSize: memory.DefaultContextWindowSize,
}

// Options configures an Engine using the functional options pattern.
//
// Every collaborator has an in-process default so an engine can be built
// for tests and local experiments without any infrastructure:
//
//	eng, err := engine.New(func(o *engine.Options) {
//	    o.AgentIDs = []string{"alice", "bob"}
//	    o.Modules = []*capability.Module{goals.Module()}
//	})
type Options struct {
	// Config contains the per-agent tuning parameters. Defaults to DefaultConfig.
	Config Config

	// AgentIDs lists the agents to run. Ids must be unique and non-empty.
	AgentIDs []string

	// Modules are registered after the built-in core module.
	Modules []*capability.Module

	// Client is the completion service. Defaults to an empty MockClient.
	Client core.CompletionClient

	// Store persists every agent's event tail. Defaults to an in-memory store.
	Store core.Store

	// Bus delivers messages between users and agents. Defaults to an
	// in-process bus.
	Bus core.MessageBus

	// Codec encodes persisted tails. Defaults to JSON.
	Codec memory.Codec

	// Callbacks receive agent lifecycle events. Optional.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to a NoOp logger.
	Logger logging.Logger
}

// Engine runs a fixed set of agents over a shared registry, store and bus.
//
// Each agent owns its memory manager and dispatcher; module state is kept
// per agent in one shared container keyed by (agent, module). Agents are
// subscribed to the bus when the engine is built, so messages sent before
// Run are queued rather than lost.
type Engine struct {
	opts     Options
	registry *capability.Registry

	mu     sync.RWMutex
	agents map[string]*agent.Agent
	order  []string
	subs   []core.Subscription

	running atomic.Bool
}

// New builds an Engine and one agent per configured id.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Client == nil {
		opts.Client = completion.NewMockClient()
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.Bus == nil {
		opts.Bus = bus.NewInMemoryBus(func(o *bus.Options) { o.Logger = opts.Logger })
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	if err := validateAgentIDs(opts.AgentIDs); err != nil {
		return nil, err
	}

	modules := append([]*capability.Module{builtin.Core()}, opts.Modules...)
	registry, err := capability.NewRegistry(modules...)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	e := &Engine{
		opts:     opts,
		registry: registry,
		agents:   make(map[string]*agent.Agent, len(opts.AgentIDs)),
	}

	states := capability.NewStates()
	for _, id := range opts.AgentIDs {
		a := e.newAgent(id, states)
		e.agents[id] = a
		e.order = append(e.order, id)
		e.subs = append(e.subs, opts.Bus.Subscribe(a.Deliver))
	}

	return e, nil
}

func (e *Engine) newAgent(id string, states *capability.States) *agent.Agent {
	cfg := e.opts.Config
	logger := agentLogger(e.opts.Logger, id)

	d := dispatch.New(e.registry, func(o *dispatch.Options) {
		o.AgentID = id
		o.AllAgentIDs = e.opts.AgentIDs
		o.Send = e.opts.Bus.Send
		o.States = states
		o.Logger = logger
	})

	mem := memory.New(e.opts.Store, e.opts.Client, d, func(o *memory.Options) {
		o.AgentID = id
		o.Model = cfg.Model
		o.SummaryMaxTokens = cfg.SummaryMaxTokens
		o.Codec = e.opts.Codec
		o.Logger = logger
		if cfg.ContextWindowSize > 0 {
			o.ContextWindowSize = cfg.ContextWindowSize
		}
		if cfg.SummaryPreamble != "" {
			o.SummaryPreamble = cfg.SummaryPreamble
		}
		if cfg.SummaryInstruction != "" {
			o.SummaryInstruction = cfg.SummaryInstruction
		}
	})

	return agent.New(id, mem, e.opts.Client, e.registry, d, func(o *agent.Options) {
		o.Model = cfg.Model
		o.MaxTokens = cfg.MaxTokens
		o.TickInterval = cfg.TickInterval
		o.Logger = logger
	})
}

func agentLogger(l logging.Logger, id string) logging.Logger {
	if al, ok := l.(*logging.AgentLogger); ok {
		return al.WithAgent(id)
	}
	return l
}

func validateAgentIDs(ids []string) error {
	if len(ids) == 0 {
		return errors.New("engine needs at least one agent id")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return errors.New("empty agent id")
		}
		if seen[id] {
			return fmt.Errorf("duplicate agent id %q", id)
		}
		seen[id] = true
	}
	return nil
}

// Run starts every agent and blocks until all of them returned. Agents stop
// when ctx is cancelled; an agent whose store fails stops on its own while
// the others keep running. Store faults are returned joined.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	e.mu.RLock()
	agents := make([]*agent.Agent, 0, len(e.order))
	for _, id := range e.order {
		agents = append(agents, e.agents[id])
	}
	e.mu.RUnlock()

	e.opts.Logger.Info("engine.start", "agents", len(agents))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, a := range agents {
		wg.Add(1)
		go func(a *agent.Agent) {
			defer wg.Done()
			if err := e.runAgent(ctx, a); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()

	e.opts.Logger.Info("engine.stop", "faults", len(errs))

	return errors.Join(errs...)
}

func (e *Engine) runAgent(ctx context.Context, a *agent.Agent) error {
	e.callback(ctx, CallbackAgentStart, a.ID(), nil)

	err := a.Run(ctx)
	if err != nil {
		err = fmt.Errorf("agent %s: %w", a.ID(), err)
		if errors.Is(err, core.ErrStoreFault) {
			e.opts.Logger.Error("engine.agent.store_fault", "agent", a.ID(), "error", err)
			e.callback(ctx, CallbackStoreFault, a.ID(), err)
		} else {
			e.opts.Logger.Error("engine.agent.fault", "agent", a.ID(), "error", err)
		}
	}

	e.callback(ctx, CallbackAgentStop, a.ID(), err)

	return err
}

func (e *Engine) callback(ctx context.Context, t CallbackType, agentID string, err error) {
	// stop callbacks still run after cancellation
	cbCtx := context.WithoutCancel(ctx)
	if cbErr := e.opts.Callbacks.ExecuteCallbacks(cbCtx, t, &CallbackContext{AgentID: agentID, Type: t, Err: err}); cbErr != nil {
		e.opts.Logger.Warn("engine.callback.failed", "agent", agentID, "type", t, "error", cbErr)
	}
}

// Send publishes msg on the bus.
func (e *Engine) Send(ctx context.Context, msg core.Message) error {
	if len(msg.TargetAgentIDs) == 0 {
		return errors.New("message has no target agent")
	}
	return e.opts.Bus.Send(ctx, msg)
}

// Agent returns the agent with the given id.
func (e *Engine) Agent(id string) (*agent.Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", id, core.ErrNotFound)
	}
	return a, nil
}

// Events returns the current memory snapshot of the agent with the given id.
func (e *Engine) Events(ctx context.Context, id string) ([]core.Event, error) {
	a, err := e.Agent(id)
	if err != nil {
		return nil, err
	}
	return a.Events(ctx)
}

// AgentIDs returns the configured agent ids, sorted.
func (e *Engine) AgentIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := append([]string(nil), e.order...)
	sort.Strings(ids)
	return ids
}

// Registry returns the capability registry shared by all agents.
func (e *Engine) Registry() *capability.Registry { return e.registry }

// RegisterCallback adds a lifecycle callback.
func (e *Engine) RegisterCallback(cb Callback) { e.opts.Callbacks.RegisterCallback(cb) }

// Close unsubscribes every agent from the bus. The engine must not be run
// afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subs {
		sub.Unsubscribe()
	}
	e.subs = nil

	return nil
}

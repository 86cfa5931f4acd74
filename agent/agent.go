package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/parser"
)

// ErrAlreadyRunning is returned by Run when the agent loop is already active.
var ErrAlreadyRunning = errors.New("agent already running")

// State is the phase of the decision cycle.
type State int32

const (
	// StateIdle means no decision cycle is in flight.
	StateIdle State = iota
	// StateDeciding means the agent waits for the completion service.
	StateDeciding
	// StateExecuting means an action handler is running.
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeciding:
		return "deciding"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Memory is the event log the loop reads from and appends to.
type Memory interface {
	Retrieve(ctx context.Context) ([]core.Event, error)
	Append(ctx context.Context, event core.Event) ([]core.Event, error)
}

// Executor runs validated actions. A non-nil result is an error Message to
// record in memory.
type Executor interface {
	Execute(ctx context.Context, action *parser.Action) *core.Message
}

// Options configure an Agent.
type Options struct {
	Model     string
	MaxTokens int
	// TickInterval is the period of the decision timer.
	TickInterval time.Duration
	// Bus, when set, is subscribed for the lifetime of Run.
	Bus    core.MessageBus
	Logger logging.Logger
}

// Agent runs the control loop of a single agent. Ticks and inbound message
// appends are serialized: at most one decision cycle is in flight and a
// delivery never interleaves with it.
type Agent struct {
	id       string
	memory   Memory
	client   core.CompletionClient
	registry parser.Registry
	executor Executor
	opts     Options

	cycle   sync.Mutex // serializes ticks and inbox processing
	state   atomic.Int32
	running atomic.Bool

	inboxMu sync.Mutex
	inbox   []core.Message
	notify  chan struct{}
}

// New creates an agent. Collaborators are shared by reference; memory and
// executor must belong to this agent alone.
func New(id string, memory Memory, client core.CompletionClient, registry parser.Registry, executor Executor, optFns ...func(o *Options)) *Agent {
	opts := Options{
		TickInterval: time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Agent{
		id:       id,
		memory:   memory,
		client:   client,
		registry: registry,
		executor: executor,
		opts:     opts,
		notify:   make(chan struct{}, 1),
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// State returns the current phase of the decision cycle.
func (a *Agent) State() State { return State(a.state.Load()) }

// Events returns the agent's current memory snapshot.
func (a *Agent) Events(ctx context.Context) ([]core.Event, error) {
	return a.memory.Retrieve(ctx)
}

// Deliver queues msg if it targets this agent. It never blocks, so it is safe
// to use as a MessageBus handler, including from inside an action handler of
// this very agent.
func (a *Agent) Deliver(msg core.Message) {
	if !msg.Targets(a.id) {
		return
	}

	a.inboxMu.Lock()
	a.inbox = append(a.inbox, msg)
	a.inboxMu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Run drives the agent until ctx is cancelled or a store fault occurs. A
// store fault is returned as is; completion faults and recoverable errors are
// logged and the loop continues.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	if a.opts.Bus != nil {
		sub := a.opts.Bus.Subscribe(a.Deliver)
		defer sub.Unsubscribe()
	}

	ticker := time.NewTicker(a.opts.TickInterval)
	defer ticker.Stop()

	a.opts.Logger.Info("agent.start", "agent", a.id, "tick_interval", a.opts.TickInterval)
	defer a.opts.Logger.Info("agent.stop", "agent", a.id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.notify:
			if err := a.check(ctx, a.ProcessInbox(ctx)); err != nil {
				return err
			}
		case <-ticker.C:
			if err := a.check(ctx, a.Tick(ctx)); err != nil {
				return err
			}
			// A tick that outlasted the interval leaves one stale firing
			// behind; drop it instead of starting another cycle right away.
			select {
			case <-ticker.C:
				a.opts.Logger.Debug("agent.tick.deferred", "agent", a.id)
			default:
			}
		}
	}
}

// check classifies a cycle error. Only store faults are fatal.
func (a *Agent) check(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, core.ErrStoreFault):
		a.opts.Logger.Error("agent.store_fault", "agent", a.id, "error", err)
		return err
	case errors.Is(err, core.ErrCompletionFault):
		a.opts.Logger.Error("agent.tick.completion_fault", "agent", a.id, "error", err)
		return nil
	default:
		a.opts.Logger.Error("agent.tick.fault", "agent", a.id, "error", err)
		return nil
	}
}

// ProcessInbox appends every queued message to memory in arrival order.
func (a *Agent) ProcessInbox(ctx context.Context) error {
	a.cycle.Lock()
	defer a.cycle.Unlock()

	return a.drainInbox(ctx)
}

func (a *Agent) drainInbox(ctx context.Context) error {
	for {
		msg, ok := a.popMessage()
		if !ok {
			return nil
		}

		if _, err := a.memory.Append(ctx, core.NewMessageEvent(msg)); err != nil {
			if errors.Is(err, core.ErrCompletionFault) {
				// summarization failed, keep the message for the next cycle
				a.pushFront(msg)
			}
			return err
		}

		a.opts.Logger.Debug("agent.message.appended", "agent", a.id, "type", msg.Type, "source", msg.Source.Type)
	}
}

func (a *Agent) popMessage() (core.Message, bool) {
	a.inboxMu.Lock()
	defer a.inboxMu.Unlock()

	if len(a.inbox) == 0 {
		return core.Message{}, false
	}
	msg := a.inbox[0]
	a.inbox = a.inbox[1:]

	return msg, true
}

func (a *Agent) pushFront(msg core.Message) {
	a.inboxMu.Lock()
	defer a.inboxMu.Unlock()

	a.inbox = append([]core.Message{msg}, a.inbox...)
}

// Tick runs one decision cycle: pending messages are appended first, then,
// unless the latest event already is a Decision, the model is asked for the
// next action which is recorded, parsed and executed.
func (a *Agent) Tick(ctx context.Context) error {
	a.cycle.Lock()
	defer a.cycle.Unlock()

	if err := a.drainInbox(ctx); err != nil {
		return err
	}

	start := time.Now()
	outcome, err := a.decide(ctx)
	a.state.Store(int32(StateIdle))
	logging.Tick(a.opts.Logger, outcome, time.Since(start))

	return err
}

func (a *Agent) decide(ctx context.Context) (string, error) {
	events, err := a.memory.Retrieve(ctx)
	if err != nil {
		return "fault", err
	}
	if len(events) > 0 && events[len(events)-1].IsDecision() {
		a.opts.Logger.Debug("agent.tick.skip", "agent", a.id)
		return "skipped", nil
	}

	a.state.Store(int32(StateDeciding))

	callStart := time.Now()
	text, err := a.client.Complete(ctx, core.CompletionRequest{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		Events:    events,
	})
	logging.Completion(a.opts.Logger, a.opts.Model, completion.Total(events, nil), time.Since(callStart), err)
	if err != nil {
		return "completion_fault", core.AsCompletionFault(err)
	}

	if _, err := a.memory.Append(ctx, core.NewDecisionEvent(text)); err != nil {
		return "fault", err
	}

	action, err := parser.Parse(a.registry, text)
	if err != nil {
		a.opts.Logger.Info("agent.parse_error", "agent", a.id, "error", err)
		if err := a.feedback(ctx, core.ErrorMessage(a.id, err.Error())); err != nil {
			return "fault", err
		}
		return "parse_error", nil
	}

	a.state.Store(int32(StateExecuting))

	if fault := a.executor.Execute(ctx, action); fault != nil {
		if err := a.feedback(ctx, *fault); err != nil {
			return "fault", err
		}
		return "handler_fault", nil
	}

	return "executed", nil
}

// feedback records the error Message answering the Decision just appended.
// When summarization fails the message goes back to the front of the inbox,
// so the next cycle appends it before the model is asked again.
func (a *Agent) feedback(ctx context.Context, msg core.Message) error {
	if _, err := a.memory.Append(ctx, core.NewMessageEvent(msg)); err != nil {
		if errors.Is(err, core.ErrCompletionFault) {
			a.pushFront(msg)
		}
		return err
	}
	return nil
}

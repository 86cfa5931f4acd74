package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/bus"
	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/capability/builtin"
	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/dispatch"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/memory"
)

type fixture struct {
	agent  *Agent
	client *completion.MockClient
	store  *testutil.RecordingStore
	bus    *bus.InMemoryBus
}

func testModule() *capability.Module {
	return &capability.Module{
		Name: "test",
		Actions: map[string]*capability.ActionDefinition{
			"fail": {
				Description: "always fails",
				Handler: func(map[string]string, *capability.ActionContext) error {
					return errors.New("broken on purpose")
				},
			},
		},
	}
}

// newFixture wires a real memory manager and dispatcher around a mock
// completion client. With run=true the bus subscription is left to Run.
func newFixture(t *testing.T, run bool, memFns ...func(o *memory.Options)) *fixture {
	t.Helper()

	reg := capability.MustRegistry(builtin.Core(), testModule())
	b := bus.NewInMemoryBus()
	d := dispatch.New(reg, func(o *dispatch.Options) {
		o.AgentID = "alice"
		o.AllAgentIDs = []string{"alice", "bob"}
		o.Send = b.Send
	})
	store := testutil.NewRecordingStore()
	client := completion.NewMockClient()
	memFns = append([]func(o *memory.Options){func(o *memory.Options) { o.AgentID = "alice" }}, memFns...)
	mem := memory.New(store, client, d, memFns...)

	a := New("alice", mem, client, reg, d, func(o *Options) {
		o.Model = "test-model"
		o.TickInterval = 2 * time.Millisecond
		if run {
			o.Bus = b
		}
	})
	if !run {
		b.Subscribe(a.Deliver)
	}

	return &fixture{agent: a, client: client, store: store, bus: b}
}

func (f *fixture) events(t *testing.T) []core.Event {
	t.Helper()
	events, err := f.agent.Events(context.Background())
	require.NoError(t, err)
	return events
}

func contents(events []core.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events[1:] {
		out = append(out, e.Content())
	}
	return out
}

func TestTick_FreshAgentWaitsForFirstMessage(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.agent.Tick(context.Background()))
	assert.Empty(t, f.client.Requests())
	assert.Equal(t, StateIdle, f.agent.State())
}

func TestTick_DecidesAndExecutes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.agent.Deliver(core.UserMessage("what can you do?", "alice"))
	f.client.Enqueue("action: help")

	require.NoError(t, f.agent.Tick(ctx))
	require.NoError(t, f.agent.ProcessInbox(ctx))

	events := f.events(t)
	require.Len(t, events, 5)
	assert.True(t, events[1].IsDecision())
	assert.True(t, events[2].IsMessage(core.MessageTypeSpontaneous))
	assert.True(t, events[3].IsDecision())
	assert.Equal(t, "action: help", events[3].ActionText)
	assert.True(t, events[4].IsMessage(core.MessageTypeOK))
	assert.Contains(t, events[4].Content(), "Available actions")

	reqs := f.client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "test-model", reqs[0].Model)
	assert.Contains(t, reqs[0].Events[0].Content(), "You are agent alice.")
	assert.Equal(t, "what can you do?", reqs[0].Events[len(reqs[0].Events)-1].Content())

	// the latest event is an ok message, so the next tick decides again
	f.client.Enqueue("action: noop")
	require.NoError(t, f.agent.Tick(ctx))
	assert.Len(t, f.client.Requests(), 2)

	// ...and after a noop the agent waits
	require.NoError(t, f.agent.Tick(ctx))
	assert.Len(t, f.client.Requests(), 2)
}

func TestTick_ParseErrorIsFedBackAndPrunedAfterSuccess(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.agent.Deliver(core.UserMessage("hi", "alice"))
	f.client.Enqueue("action: doStuff")
	require.NoError(t, f.agent.Tick(ctx))

	events := f.events(t)
	last := events[len(events)-1]
	require.True(t, last.IsMessage(core.MessageTypeError))
	assert.Contains(t, last.Content(), "Unknown action `doStuff`")
	assert.Contains(t, last.Content(), "help")

	f.client.Enqueue("action: help\naboutAction: noop")
	require.NoError(t, f.agent.Tick(ctx))
	require.NoError(t, f.agent.ProcessInbox(ctx))

	assert.Equal(t, []string{"action: noop", "hi", "action: help\naboutAction: noop"}, contents(f.events(t))[:3])
	events = f.events(t)
	assert.True(t, events[len(events)-1].IsMessage(core.MessageTypeOK))
	for _, e := range events {
		assert.False(t, e.IsMessage(core.MessageTypeError), "error message was pruned")
		assert.NotEqual(t, "action: doStuff", e.Content(), "decision that caused the error was pruned")
	}
}

func TestTick_HandlerFaultBecomesErrorMessage(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.agent.Deliver(core.UserMessage("go", "alice"))
	f.client.Enqueue("action: fail")
	require.NoError(t, f.agent.Tick(ctx))

	events := f.events(t)
	last := events[len(events)-1]
	require.True(t, last.IsMessage(core.MessageTypeError))
	assert.Contains(t, last.Content(), "broken on purpose")
	assert.Equal(t, []string{"alice"}, last.Message.TargetAgentIDs)
}

func TestTick_CompletionFaultLeavesMemoryUntouched(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.agent.Deliver(core.UserMessage("hi", "alice"))
	require.NoError(t, f.agent.ProcessInbox(ctx))
	before := testutil.IDs(f.events(t)[1:])
	writes := f.store.Sets()

	f.client.EnqueueError(errors.New("503 overloaded"))
	err := f.agent.Tick(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCompletionFault)

	assert.Equal(t, before, testutil.IDs(f.events(t)[1:]))
	assert.Equal(t, writes, f.store.Sets())
	assert.Equal(t, StateIdle, f.agent.State())
}

func TestTick_FeedbackSurvivesSummaryFault(t *testing.T) {
	// a tiny window makes the error Message append trigger a summary
	f := newFixture(t, false, func(o *memory.Options) { o.ContextWindowSize = 40 })
	ctx := context.Background()

	f.agent.Deliver(core.UserMessage("hi", "alice"))
	f.client.Enqueue("garbage")
	f.client.EnqueueError(errors.New("model down"))

	err := f.agent.Tick(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCompletionFault)

	events := f.events(t)
	require.True(t, events[len(events)-1].IsDecision())
	assert.Equal(t, "garbage", events[len(events)-1].ActionText)
	seen := len(f.client.Requests())

	// healthy again: the parse error is recorded first, then the agent decides
	require.NoError(t, f.agent.Tick(ctx))

	fedBack := false
	for _, req := range f.client.Requests()[seen:] {
		last := req.Events[len(req.Events)-1]
		if last.IsMessage(core.MessageTypeError) {
			fedBack = true
			assert.True(t, req.Events[len(req.Events)-2].IsDecision())
		}
	}
	assert.True(t, fedBack, "decision request ends on the parse error")

	events = f.events(t)
	assert.True(t, events[len(events)-1].IsDecision())
	assert.Equal(t, "action: noop", events[len(events)-1].ActionText)

	faults := 0
	for _, e := range events {
		if e.IsMessage(core.MessageTypeError) {
			faults++
		}
	}
	assert.Equal(t, 1, faults)
}

func TestDeliver_IgnoresMessagesForOtherAgents(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.bus.Send(ctx, core.UserMessage("for bob", "bob")))
	require.NoError(t, f.agent.ProcessInbox(ctx))
	assert.Len(t, f.events(t), 2)
}

func TestRun_ProcessesDeliveriesAndStops(t *testing.T) {
	f := newFixture(t, true)
	f.client.Enqueue("action: noop")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	// wait for the subscription before sending
	require.Eventually(t, func() bool {
		_ = f.bus.Send(ctx, core.UserMessage("hello", "alice"))
		return len(f.client.Requests()) > 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		events, err := f.agent.Events(context.Background())
		return err == nil && events[len(events)-1].IsDecision() && len(events) >= 4
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.agent.Run(ctx), ErrAlreadyRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_StoreFaultIsFatal(t *testing.T) {
	f := newFixture(t, true)
	f.store.FailSets(errors.New("disk full"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	f.agent.Deliver(core.UserMessage("hello", "alice"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrStoreFault)
	case <-ctx.Done():
		t.Fatal("Run did not report the store fault")
	}
}

func TestRun_CyclesNeverOverlap(t *testing.T) {
	f := newFixture(t, true)

	var inflight, maxInflight, calls atomic.Int32
	var mu sync.Mutex
	var states []State
	f.client.Handler = func(ctx context.Context, _ core.CompletionRequest) (string, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			m := maxInflight.Load()
			if n <= m || maxInflight.CompareAndSwap(m, n) {
				break
			}
		}
		calls.Add(1)
		mu.Lock()
		states = append(states, f.agent.State())
		mu.Unlock()
		time.Sleep(10 * time.Millisecond) // several tick intervals
		return "action: help", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = f.bus.Send(ctx, core.UserMessage("start", "alice"))
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), maxInflight.Load())
	mu.Lock()
	defer mu.Unlock()
	for _, s := range states {
		assert.Equal(t, StateDeciding, s)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "deciding", StateDeciding.String())
	assert.Equal(t, "executing", StateExecuting.String())
}

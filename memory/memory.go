package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/capability/builtin"
	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
)

const (
	// DefaultContextWindowSize is the token budget used when none is configured.
	DefaultContextWindowSize = 8192

	// DefaultSummaryPreamble prefixes every summary event.
	DefaultSummaryPreamble = "Several earlier events were removed to free up space in your context window. This is a summary of what happened:\n\n"

	// DefaultSummaryInstruction is rendered with WordLimit and AgentID.
	DefaultSummaryInstruction = "Summarize everything above in at most {{.WordLimit}} words. " +
		"Address agent {{.AgentID}} in the second person (\"you\"). " +
		"Be information dense and keep every fact, goal and open question you will need later. " +
		"Reply with plain text only. Do not reply with an action."

	thresholdRatio = 0.75
	wordsPerToken  = 6
	minTail        = 3
)

// IntroductionSource supplies the pinned text that forms the Introduction.
type IntroductionSource interface {
	PinnedText(ctx context.Context) (string, error)
}

// Options configure a Manager.
type Options struct {
	AgentID           string
	Model             string
	ContextWindowSize int
	// SummaryMaxTokens caps the summary completion. Zero leaves it to the client.
	SummaryMaxTokens   int
	SummaryPreamble    string
	SummaryInstruction string
	// TokenCounter estimates the cost of one event. Defaults to completion.EventCost.
	TokenCounter func(core.Event) int
	Codec        Codec
	Logger       logging.Logger
}

// Manager owns one agent's event log: the persisted tail plus the synthetic
// Introduction rebuilt on every retrieval. All methods are serialized.
type Manager struct {
	mu          sync.Mutex
	store       core.Store
	client      core.CompletionClient
	intro       IntroductionSource
	opts        Options
	initialized bool
}

// New creates a Manager persisting to store and summarizing through client.
func New(store core.Store, client core.CompletionClient, intro IntroductionSource, optFns ...func(o *Options)) *Manager {
	opts := Options{
		ContextWindowSize:  DefaultContextWindowSize,
		SummaryPreamble:    DefaultSummaryPreamble,
		SummaryInstruction: DefaultSummaryInstruction,
		TokenCounter:       completion.EventCost,
		Codec:              JSONCodec{},
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TokenCounter == nil {
		opts.TokenCounter = completion.EventCost
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Manager{store: store, client: client, intro: intro, opts: opts}
}

// Key returns the store key holding the agent's tail.
func Key(agentID string) string { return "agent/" + agentID + "/events" }

// Retrieve returns [Introduction, ...stored events]. The first call also
// summarizes and persists, establishing a bounded baseline.
func (m *Manager) Retrieve(ctx context.Context) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.retrieve(ctx)
}

// Append adds event to the log. An ok Message first prunes the most recent
// error Message together with the Decision right before it. The result is
// summarized, persisted without the Introduction and returned.
func (m *Manager) Append(ctx context.Context, event core.Event) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events, err := m.retrieve(ctx)
	if err != nil {
		return nil, err
	}

	if event.IsMessage(core.MessageTypeOK) {
		events = pruneErrorPair(events)
	}
	events = append(events, event)

	events, err = m.summarize(ctx, events)
	if err != nil {
		return nil, err
	}

	if err := m.persist(ctx, events[1:]); err != nil {
		return nil, err
	}

	return events, nil
}

// Summarize compresses events (Introduction first) when their total cost
// exceeds 75% of the context window. It returns either events unchanged or a
// list with strictly smaller total cost. It does not persist.
func (m *Manager) Summarize(ctx context.Context, events []core.Event) ([]core.Event, error) {
	return m.summarize(ctx, events)
}

func (m *Manager) retrieve(ctx context.Context) ([]core.Event, error) {
	intro, err := m.introduction(ctx)
	if err != nil {
		return nil, err
	}

	tail, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]core.Event, 0, len(tail)+1)
	events = append(events, intro)
	events = append(events, tail...)

	if m.initialized {
		return events, nil
	}

	events, err = m.summarize(ctx, events)
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, events[1:]); err != nil {
		return nil, err
	}
	m.initialized = true

	return events, nil
}

func (m *Manager) introduction(ctx context.Context) (core.Event, error) {
	var text string
	if m.intro != nil {
		t, err := m.intro.PinnedText(ctx)
		if err != nil {
			return core.Event{}, fmt.Errorf("build introduction: %w", err)
		}
		text = t
	}
	return core.NewMessageEvent(core.NewMessage(core.MessageTypeSpontaneous, core.SystemSource(), text, m.opts.AgentID)), nil
}

func (m *Manager) load(ctx context.Context) ([]core.Event, error) {
	key := Key(m.opts.AgentID)

	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, &core.StoreFaultError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return []core.Event{core.NewDecisionEvent(builtin.SeedActionText)}, nil
	}

	events, err := m.opts.Codec.Unmarshal(data)
	if err != nil {
		return nil, &core.StoreFaultError{Op: "decode", Key: key, Err: err}
	}
	if len(events) == 0 {
		events = []core.Event{core.NewDecisionEvent(builtin.SeedActionText)}
	}

	return events, nil
}

func (m *Manager) persist(ctx context.Context, tail []core.Event) error {
	key := Key(m.opts.AgentID)

	data, err := m.opts.Codec.Marshal(tail)
	if err != nil {
		return &core.StoreFaultError{Op: "encode", Key: key, Err: err}
	}
	if err := m.store.Set(ctx, key, data); err != nil {
		return &core.StoreFaultError{Op: "set", Key: key, Err: err}
	}

	return nil
}

// pruneErrorPair removes the most recent error Message (never the
// Introduction) and the Decision immediately before it, if any.
func pruneErrorPair(events []core.Event) []core.Event {
	for i := len(events) - 1; i >= 1; i-- {
		if !events[i].IsMessage(core.MessageTypeError) {
			continue
		}

		start := i
		if i-1 >= 1 && events[i-1].IsDecision() {
			start = i - 1
		}

		out := make([]core.Event, 0, len(events)-(i-start+1))
		out = append(out, events[:start]...)
		return append(out, events[i+1:]...)
	}

	return events
}

func (m *Manager) summarize(ctx context.Context, events []core.Event) ([]core.Event, error) {
	if len(events) == 0 {
		return events, nil
	}

	cum := completion.CumulativeCosts(completion.Costs(events, m.opts.TokenCounter))
	total := cum[len(cum)-1]
	threshold := float64(m.opts.ContextWindowSize) * thresholdRatio
	if float64(total) <= threshold {
		return events, nil
	}

	k, ok := truncationBoundary(cum, float64(total)-threshold)
	if !ok {
		m.opts.Logger.Debug("memory.summarize.skip", "agent", m.opts.AgentID, "events", len(events)-1, "total", total)
		return events, nil
	}

	wordLimit := int(threshold / wordsPerToken)
	instruction, err := util.RenderTemplate(m.opts.SummaryInstruction, struct {
		WordLimit int
		AgentID   string
	}{WordLimit: wordLimit, AgentID: m.opts.AgentID})
	if err != nil {
		return nil, fmt.Errorf("summary instruction: %w", err)
	}

	req := core.CompletionRequest{
		Model:     m.opts.Model,
		MaxTokens: m.opts.SummaryMaxTokens,
		Events:    make([]core.Event, 0, k+1),
	}
	req.Events = append(req.Events, events[1:k+1]...)
	req.Events = append(req.Events, core.NewMessageEvent(core.NewMessage(core.MessageTypeSpontaneous, core.SystemSource(), instruction, m.opts.AgentID)))

	text, err := m.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", core.AsCompletionFault(err))
	}

	summary := core.NewMessageEvent(core.NewMessage(
		core.MessageTypeSpontaneous,
		core.SystemSource(),
		m.opts.SummaryPreamble+strings.TrimSpace(text),
		m.opts.AgentID,
	))

	candidate := make([]core.Event, 0, len(events)-k+1)
	candidate = append(candidate, events[0], summary)
	candidate = append(candidate, events[k+1:]...)

	after := completion.Total(candidate, m.opts.TokenCounter)
	if after >= total {
		m.opts.Logger.Warn("memory.summarize.rejected", "agent", m.opts.AgentID, "before", total, "after", after)
		return events, nil
	}

	m.opts.Logger.Info("memory.summarize", "agent", m.opts.AgentID, "summarized", k, "kept", len(events)-1-k, "before", total, "after", after, "word_limit", wordLimit)

	return candidate, nil
}

// truncationBoundary returns how many events after the Introduction to
// summarize, given the cumulative cost array of the whole list (Introduction
// at index 0). The smallest prefix covering overrun is widened to half the
// events and then narrowed so at least minTail events remain; the tail bound
// wins when both cannot hold.
func truncationBoundary(cum []int, overrun float64) (int, bool) {
	n := len(cum) - 1
	maxK := n - minTail
	if maxK < 1 {
		return 0, false
	}

	k := sort.Search(n, func(i int) bool {
		return float64(cum[i+1]-cum[0]) >= overrun
	}) + 1

	if half := (n + 1) / 2; k < half {
		k = half
	}
	if k > maxK {
		k = maxK
	}

	return k, true
}

// Package bus provides an in-process core.MessageBus.
package bus

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// InMemoryBus fans every message out to all current subscribers
// synchronously, on the sender's goroutine. Handlers must not block.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]core.MessageHandler
	order    []string
	logger   logging.Logger
}

var _ core.MessageBus = (*InMemoryBus)(nil)

// Options configure an InMemoryBus.
type Options struct {
	Logger logging.Logger
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(optFns ...func(o *Options)) *InMemoryBus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &InMemoryBus{handlers: make(map[string]core.MessageHandler), logger: opts.Logger}
}

// Subscribe registers handler until the returned subscription is cancelled.
func (b *InMemoryBus) Subscribe(handler core.MessageHandler) core.Subscription {
	id := core.NewID()

	b.mu.Lock()
	b.handlers[id] = handler
	b.order = append(b.order, id)
	b.mu.Unlock()

	return &subscription{id: id, bus: b}
}

// Send delivers msg to every subscriber registered at the time of the call.
func (b *InMemoryBus) Send(ctx context.Context, msg core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]core.MessageHandler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	b.logger.Debug("bus.send", "type", msg.Type, "source", msg.Source.Type, "targets", msg.TargetAgentIDs, "subscribers", len(handlers))

	for _, h := range handlers {
		h(cloneMessage(msg))
	}

	return nil
}

func (b *InMemoryBus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[id]; !ok {
		return
	}
	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

type subscription struct {
	id   string
	bus  *InMemoryBus
	once sync.Once
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.unsubscribe(s.id) })
}

func cloneMessage(m core.Message) core.Message {
	m.TargetAgentIDs = append([]string(nil), m.TargetAgentIDs...)
	return m
}

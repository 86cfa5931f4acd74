package core

import "context"

// Store persists opaque values by key. Get reports ok=false for missing keys.
// Implementations must be safe for concurrent use; callers serialize writes
// for a given key.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// CompletionRequest is the normalized input to a completion service.
type CompletionRequest struct {
	Model     string
	MaxTokens int
	Events    []Event
}

// CompletionClient turns an ordered event sequence into a model request and
// returns the raw response text.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// MessageHandler receives messages delivered by a MessageBus. Handlers must
// not block; they are invoked on the sender's goroutine.
type MessageHandler func(msg Message)

// Subscription is returned by MessageBus.Subscribe.
type Subscription interface {
	ID() string
	Unsubscribe()
}

// MessageBus delivers messages to every current subscriber at least once. It
// does not persist messages and does not order messages from different sources.
type MessageBus interface {
	Subscribe(handler MessageHandler) Subscription
	Send(ctx context.Context, msg Message) error
}

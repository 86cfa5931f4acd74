package completion

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// MockClient is a lightweight in-memory CompletionClient useful for tests and
// examples. Queued responses are returned first, in order; after that Handler
// (if set) decides, and finally Fallback is returned.
type MockClient struct {
	mu       sync.Mutex
	queue    []mockResponse
	requests []core.CompletionRequest
	Handler  func(ctx context.Context, req core.CompletionRequest) (string, error)
	Fallback string
}

type mockResponse struct {
	text string
	err  error
}

// NewMockClient constructs a MockClient with queued responses.
func NewMockClient(responses ...string) *MockClient {
	m := &MockClient{Fallback: "action: noop"}
	m.Enqueue(responses...)
	return m
}

// Enqueue appends canned responses.
func (m *MockClient) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.queue = append(m.queue, mockResponse{text: r})
	}
}

// EnqueueError makes a future call fail with err.
func (m *MockClient) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResponse{err: err})
}

// Complete implements core.CompletionClient.
func (m *MockClient) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	r := req
	r.Events = append([]core.Event(nil), req.Events...)
	m.requests = append(m.requests, r)

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return next.text, next.err
	}
	handler := m.Handler
	fallback := m.Fallback
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	return fallback, nil
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []core.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.CompletionRequest(nil), m.requests...)
}

package engine

import (
	"context"
	"fmt"
	"sync"
)

// CallbackType identifies a point in an agent's lifecycle inside the engine.
//
// Callbacks run synchronously on the agent's goroutine. They observe the
// lifecycle; an error they return is logged and never stops the agent.
type CallbackType string

const (
	// CallbackAgentStart fires right before an agent's loop starts.
	CallbackAgentStart CallbackType = "agent_start"

	// CallbackAgentStop fires after an agent's loop returned, whatever the reason.
	CallbackAgentStop CallbackType = "agent_stop"

	// CallbackStoreFault fires when an agent's loop terminated on a store fault.
	CallbackStoreFault CallbackType = "store_fault"
)

// CallbackContext describes the lifecycle event a callback observes.
type CallbackContext struct {
	// AgentID is the agent the event belongs to.
	AgentID string

	// Type is the callback type being executed.
	Type CallbackType

	// Err is the error the loop returned. Nil for CallbackAgentStart and for
	// a clean stop.
	Err error
}

// Callback is a lifecycle hook registered with the engine.
type Callback interface {
	// Type returns the lifecycle point this callback handles.
	Type() CallbackType

	// Execute runs the callback.
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback adapts a plain function to the Callback interface.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackStoreFault, func(ctx context.Context, c *CallbackContext) error {
//	    alerts.Page("agent %s lost its store: %v", c.AgentID, c.Err)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(context.Context, *CallbackContext) error
}

var _ Callback = (*FunctionCallback)(nil)

// NewFunctionCallback creates a callback from fn.
func NewFunctionCallback(callbackType CallbackType, fn func(context.Context, *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// CallbackManager keeps callbacks per type in registration order. It is safe
// for concurrent use since every agent goroutine executes callbacks.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds callback for its type. Callbacks of the same type run
// in registration order.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType. It stops
// at the first error and returns it.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, cbCtx *CallbackContext) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a message sink.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

var _ Callback = (*LoggingCallback)(nil)

// NewLoggingCallback creates a callback that formats each event and passes it
// to logger.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute formats the event.
func (c *LoggingCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	msg := fmt.Sprintf("[%s] agent=%s", c.callbackType, cbCtx.AgentID)
	if cbCtx.Err != nil {
		msg += fmt.Sprintf(" error=%v", cbCtx.Err)
	}
	c.logger(msg)
	return nil
}

// Package logging provides a minimal logging interface and adapters for agentloop.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, agents and memory managers use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping a caller supplied *slog.Logger
//   - AgentLogger with agent/component context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false).WithComponent("engine")
//	eng, err := engine.New(func(o *engine.Options) { o.Logger = logger })
package logging

// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers AgentLogger, which carries contextual
// attributes (agent, component) and domain helpers for completion calls,
// action executions and control-loop ticks.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface used throughout agentloop.
// Arguments are slog style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// AgentLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via the With* methods.
type AgentLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	agentID   string
}

var _ Logger = (*AgentLogger)(nil)

// LoggerConfig configures construction of an AgentLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	AgentID     string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr, CustomAttrs: map[string]any{}}
}

// NewLogger builds an AgentLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *AgentLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	l := &AgentLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component, agentID: cfg.AgentID}
	for k, v := range cfg.CustomAttrs {
		l.context[k] = v
	}
	return l
}

// NewSlogLogger creates a new AgentLogger with the specified level, format and
// source annotation.
func NewSlogLogger(level LogLevel, format string, addSource bool) *AgentLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *AgentLogger) clone() *AgentLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *AgentLogger) WithContext(key string, value any) *AgentLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (agent, memory, dispatch, ...).
func (l *AgentLogger) WithComponent(c string) *AgentLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithAgent attaches the agent identifier.
func (l *AgentLogger) WithAgent(id string) *AgentLogger {
	nl := l.clone()
	nl.agentID = id
	return nl
}

func (l *AgentLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.agentID != "" {
		attrs = append(attrs, slog.String("agent_id", l.agentID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *AgentLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	l.logger.With(args...).LogAttrs(context.Background(), level, msg, l.buildAttrs()...)
}

// Debug logs at debug level.
func (l *AgentLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *AgentLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *AgentLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *AgentLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// StackTracer is implemented by errors that captured the stack they were
// raised on, such as recovered handler panics.
type StackTracer interface {
	StackTrace() []byte
}

// ErrorWithStack logs an error plus a stack trace. The trace carried by err
// is preferred; otherwise a snapshot of the calling goroutine is taken.
func (l *AgentLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("error", err.Error()), slog.String("error_type", fmt.Sprintf("%T", err)))

	var stack []byte
	if st, ok := err.(StackTracer); ok {
		stack = st.StackTrace()
	}
	if len(stack) == 0 {
		buf := make([]byte, 4096)
		stack = buf[:runtime.Stack(buf, false)]
	}
	attrs = append(attrs, slog.String("stack_trace", string(stack)))
	l.logger.With(args...).LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// LogCompletion records completion call latency, estimated input tokens and success.
func (l *AgentLogger) LogCompletion(model string, tokens int, dur time.Duration, success bool, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("model", model), slog.Int("token_estimate", tokens), slog.Duration("duration", dur), slog.Bool("success", success))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "completion.done"
	if !success {
		level = slog.LevelError
		msg = "completion.failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogAction records execution details for an action handler invocation.
func (l *AgentLogger) LogAction(action string, dur time.Duration, success bool, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("action", action), slog.Duration("duration", dur), slog.Bool("success", success))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "action.done"
	if !success {
		level = slog.LevelWarn
		msg = "action.failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogTick records the outcome of one control-loop tick.
func (l *AgentLogger) LogTick(outcome string, dur time.Duration) {
	if l.level > LogLevelDebug {
		return
	}
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("outcome", outcome), slog.Duration("duration", dur))
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "agent.tick", attrs...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// DomainLogger is implemented by loggers that offer the domain helpers.
type DomainLogger interface {
	Logger
	LogCompletion(model string, tokens int, dur time.Duration, success bool, err error)
	LogAction(action string, dur time.Duration, success bool, err error)
	LogTick(outcome string, dur time.Duration)
}

var _ DomainLogger = (*AgentLogger)(nil)

// Completion records a completion call on l, using LogCompletion when available.
func Completion(l Logger, model string, tokens int, dur time.Duration, err error) {
	if d, ok := l.(DomainLogger); ok {
		d.LogCompletion(model, tokens, dur, err == nil, err)
		return
	}
	if err != nil {
		l.Error("completion.failed", "model", model, "token_estimate", tokens, "duration", dur, "error", err)
		return
	}
	l.Info("completion.done", "model", model, "token_estimate", tokens, "duration", dur)
}

// Action records an action execution on l, using LogAction when available.
func Action(l Logger, action string, dur time.Duration, err error) {
	if d, ok := l.(DomainLogger); ok {
		d.LogAction(action, dur, err == nil, err)
		return
	}
	if err != nil {
		l.Warn("action.failed", "action", action, "duration", dur, "error", err)
		return
	}
	l.Info("action.done", "action", action, "duration", dur)
}

// Tick records a control-loop tick on l, using LogTick when available.
func Tick(l Logger, outcome string, dur time.Duration) {
	if d, ok := l.(DomainLogger); ok {
		d.LogTick(outcome, dur)
		return
	}
	l.Debug("agent.tick", "outcome", outcome, "duration", dur)
}

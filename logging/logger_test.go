package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*AgentLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func TestAgentLogger_AttachesContext(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.WithComponent("memory").WithAgent("alice").Info("memory.summarize", "before", 10, "after", 4)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "memory.summarize", entry["msg"])
	assert.Equal(t, "memory", entry["component"])
	assert.Equal(t, "alice", entry["agent_id"])
	assert.EqualValues(t, 10, entry["before"])
	assert.EqualValues(t, 4, entry["after"])
}

func TestAgentLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Info("hidden")
	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestAgentLogger_WithDoesNotMutateParent(t *testing.T) {
	parent, buf := newBufferLogger(LogLevelInfo)
	_ = parent.WithContext("k", "v")
	parent.Info("plain")
	assert.NotContains(t, buf.String(), `"k"`)
}

func TestAgentLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.LogCompletion("gpt", 120, time.Millisecond, false, errors.New("boom"))
	assert.Contains(t, buf.String(), "completion.failed")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	l.LogAction("help", time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), "action.done")

	buf.Reset()
	l.LogTick("skipped", 0)
	assert.Contains(t, buf.String(), "agent.tick")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}

type recordingLogger struct {
	NoOpLogger
	msgs []string
}

func (r *recordingLogger) Info(msg string, _ ...any)  { r.msgs = append(r.msgs, msg) }
func (r *recordingLogger) Warn(msg string, _ ...any)  { r.msgs = append(r.msgs, msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.msgs = append(r.msgs, msg) }
func (r *recordingLogger) Debug(msg string, _ ...any) { r.msgs = append(r.msgs, msg) }

func TestDomainHelpers_FallBackToPlainLogger(t *testing.T) {
	r := &recordingLogger{}
	Completion(r, "m", 1, time.Millisecond, nil)
	Completion(r, "m", 1, time.Millisecond, errors.New("x"))
	Action(r, "noop", 0, nil)
	Action(r, "noop", 0, errors.New("x"))
	Tick(r, "decided", 0)
	assert.Equal(t, []string{"completion.done", "completion.failed", "action.done", "action.failed", "agent.tick"}, r.msgs)
}

func TestDomainHelpers_UseAgentLogger(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	Action(l.WithAgent("bob"), "help", time.Millisecond, nil)
	assert.Contains(t, buf.String(), `"agent_id":"bob"`)
	assert.Contains(t, buf.String(), "action.done")
}

type tracedError struct{ stack string }

func (e tracedError) Error() string { return "traced" }
func (e tracedError) StackTrace() []byte { return []byte(e.stack) }

func TestAgentLogger_ErrorWithStack(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.ErrorWithStack(tracedError{stack: "goroutine 7 [running]:\nhandler()"}, "dispatch.action.panic", "action", "explode")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "explode", entry["action"])
	assert.Equal(t, "goroutine 7 [running]:\nhandler()", entry["stack_trace"])

	buf.Reset()
	l.ErrorWithStack(errors.New("plain"), "boom")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["stack_trace"], "logger_test.go")
}

func TestSlogAdapter_ForwardsToSlog(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.Warn("bus.send.dropped", "target", "bob")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "bob", entry["target"])
}

package agentloop

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
)

func TestNew_RequiresAgents(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestAgentLoop_TellAndRun(t *testing.T) {
	client := completion.NewMockClient("action: help\naboutAction: noop")

	l, err := New(func(o *Options) {
		o.AgentIDs = []string{"assistant"}
		o.Client = client
		o.EngineConfig.TickInterval = 2 * time.Millisecond
	})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Tell(context.Background(), "how do I wait?", "assistant"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		events, err := l.Events(context.Background(), "assistant")
		if err != nil {
			return false
		}
		for _, e := range events {
			if e.IsMessage(core.MessageTypeOK) {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	events, err := l.Events(context.Background(), "assistant")
	require.NoError(t, err)
	var ok bool
	for _, e := range events {
		if e.IsMessage(core.MessageTypeOK) {
			ok = true
			assert.Contains(t, e.Content(), "action: noop")
		}
	}
	assert.True(t, ok)
}

func TestAgentLoop_OnStoreFault(t *testing.T) {
	s := testutil.NewRecordingStore()
	s.FailSets(errors.New("read-only filesystem"))

	l, err := New(func(o *Options) {
		o.AgentIDs = []string{"assistant"}
		o.Store = s
		o.EngineConfig.TickInterval = 2 * time.Millisecond
	})
	require.NoError(t, err)
	defer l.Close()

	faulted := make(chan string, 1)
	l.OnStoreFault(func(agentID string, err error) {
		assert.ErrorIs(t, err, core.ErrStoreFault)
		faulted <- agentID
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = l.Run(ctx)
	assert.ErrorIs(t, err, core.ErrStoreFault)

	select {
	case id := <-faulted:
		assert.Equal(t, "assistant", id)
	default:
		t.Fatal("store fault callback was not called")
	}
}

func TestNew_WrapsSlogLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(func(o *Options) {
		o.AgentIDs = []string{"assistant"}
		o.Slog = slog.New(slog.NewTextHandler(buf, nil))
	})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))

	assert.Contains(t, buf.String(), "msg=engine.start")
	assert.Contains(t, buf.String(), "msg=engine.stop")
}

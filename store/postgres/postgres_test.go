package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, optFns ...func(o *Options)) *Store {
	t.Helper()
	dsn := os.Getenv("AGENTLOOP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGENTLOOP_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table := fmt.Sprintf("agentloop_kv_test_%d", time.Now().UnixNano())
	s, err := Open(ctx, dsn, append([]func(o *Options){func(o *Options) { o.Table = table }}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+s.table)
		s.Close()
	})
	return s
}

func TestStore_GetSet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "agent/alice/events")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "agent/alice/events", []byte("v1")))
	require.NoError(t, s.Set(ctx, "agent/alice/events", []byte("v2")))

	got, ok, err := s.Get(ctx, "agent/alice/events")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(got))
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

func TestStore_OpTimeoutBoundsStalledCalls(t *testing.T) {
	s := openTest(t, func(o *Options) {
		o.MaxConns = 1
		o.OpTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	conn, err := s.pool.Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, s.Set(ctx, "k", []byte("v")), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	conn.Release()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
}

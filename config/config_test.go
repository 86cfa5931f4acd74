package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse([]byte(`
agents: [alice, bob]
completion:
  provider: anthropic
  model: claude-3-5-haiku-latest
  attempt_timeout: 30s
memory:
  context_window_size: 4000
  summary_instruction: "Recap in {{.WordLimit}} words."
loop:
  tick_interval: 250ms
store:
  driver: sqlite
  dsn: /tmp/agentloop.db
  encoding: cbor
  compress: true
  op_timeout: 5s
`), "yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"alice", "bob"}, cfg.Agents)
	assert.Equal(t, ProviderAnthropic, cfg.Completion.Provider)
	assert.Equal(t, 30*time.Second, cfg.Completion.AttemptTimeout.Std())
	assert.Equal(t, 3, cfg.Completion.MaxAttempts, "defaults survive partial files")
	assert.Equal(t, 4000, cfg.Memory.ContextWindowSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Loop.TickInterval.Std())
	assert.Equal(t, "cbor", cfg.Store.Encoding)
	assert.True(t, cfg.Store.Compress)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout.Std())
}

func TestParse_JSONC(t *testing.T) {
	cfg, err := Parse([]byte(`{
		// two agents talking to each other
		"agents": ["alice", "bob"],
		"loop": {"tick_interval": "2s"},
		"store": {"driver": "memory",},
	}`), "jsonc")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Agents)
	assert.Equal(t, 2*time.Second, cfg.Loop.TickInterval.Std())
}

func TestParse_UnknownFieldsRejected(t *testing.T) {
	_, err := Parse([]byte("agentz: [a]\n"), "yaml")
	assert.Error(t, err)

	_, err = Parse([]byte(`{"agentz": ["a"]}`), "json")
	assert.Error(t, err)

	_, err = Parse([]byte(`a = 1`), "toml")
	assert.Error(t, err)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Agents = []string{"a", "a", ""}
	cfg.Completion.Provider = "gemini"
	cfg.Memory.ContextWindowSize = 0
	cfg.Store.Driver = "postgres"
	cfg.Store.Encoding = "xml"
	cfg.Store.OpTimeout = Duration(-time.Second)

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"duplicate agent id", "empty agent id", "gemini", "context_window_size", "store.dsn", "xml", "store.op_timeout"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{EnvModel: "gpt-4o", EnvStoreDSN: "postgres://db"}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	assert.Equal(t, "postgres://db", cfg.Store.DSN)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentloop.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"agents": ["solo"]} // trailing`), 0o600))

	t.Setenv(EnvModel, "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, cfg.Agents)
	assert.Equal(t, "from-env", cfg.Completion.Model)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.parse("1500ms"))
	assert.Equal(t, 1500*time.Millisecond, d.Std())
	require.NoError(t, d.parse("1000"))
	assert.Equal(t, time.Microsecond, d.Std())
	assert.Error(t, d.parse("soon"))

	b, err := Duration(time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(b))
}

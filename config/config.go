// Package config loads agentloop runtime configuration from YAML or JSONC
// files, applies environment overrides and validates the result.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvModel    = "AGENTLOOP_MODEL"
	EnvStoreDSN = "AGENTLOOP_STORE_DSN"
)

// Providers and drivers accepted by Validate.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete runtime configuration.
type Config struct {
	Agents     []string         `yaml:"agents" json:"agents"`
	Completion CompletionConfig `yaml:"completion" json:"completion"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`
	Loop       LoopConfig       `yaml:"loop" json:"loop"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// CompletionConfig selects and tunes the completion provider.
type CompletionConfig struct {
	Provider       string   `yaml:"provider" json:"provider"`
	Model          string   `yaml:"model" json:"model"`
	MaxTokens      int      `yaml:"max_tokens" json:"max_tokens"`
	Temperature    float64  `yaml:"temperature" json:"temperature"`
	MaxAttempts    int      `yaml:"max_attempts" json:"max_attempts"`
	AttemptTimeout Duration `yaml:"attempt_timeout" json:"attempt_timeout"`
}

// MemoryConfig tunes the bounded memory.
type MemoryConfig struct {
	ContextWindowSize  int    `yaml:"context_window_size" json:"context_window_size"`
	SummaryMaxTokens   int    `yaml:"summary_max_tokens" json:"summary_max_tokens"`
	SummaryPreamble    string `yaml:"summary_preamble" json:"summary_preamble"`
	SummaryInstruction string `yaml:"summary_instruction" json:"summary_instruction"`
}

// LoopConfig tunes the control loop.
type LoopConfig struct {
	TickInterval Duration `yaml:"tick_interval" json:"tick_interval"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver   string `yaml:"driver" json:"driver"`
	DSN      string `yaml:"dsn" json:"dsn"`
	Encoding string `yaml:"encoding" json:"encoding"`
	Compress bool   `yaml:"compress" json:"compress"`

	// OpTimeout bounds each read or write of the sqlite and postgres drivers.
	OpTimeout Duration `yaml:"op_timeout" json:"op_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns a configuration that runs a single agent against the mock
// provider with in-memory storage.
func Default() *Config {
	return &Config{
		Agents: []string{"assistant"},
		Completion: CompletionConfig{
			Provider:       ProviderMock,
			MaxTokens:      1024,
			Temperature:    0.7,
			MaxAttempts:    3,
			AttemptTimeout: Duration(2 * time.Minute),
		},
		Memory: MemoryConfig{
			ContextWindowSize: 8192,
		},
		Loop: LoopConfig{
			TickInterval: Duration(time.Second),
		},
		Store: StoreConfig{
			Driver:    DriverMemory,
			Encoding:  "json",
			OpTimeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LookupPaths returns the candidate files tried by Load when no path is
// given, in priority order.
func LookupPaths() []string {
	paths := []string{"agentloop.yaml", "agentloop.yml", "agentloop.jsonc", "agentloop.json"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "agentloop", "config.yaml"))
	}
	return paths
}

// Load reads path (or the first existing LookupPaths entry when path is
// empty) on top of Default, applies environment overrides and validates.
// Without any file the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range LookupPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, formatOf(path), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes data ("yaml" or "json"/"jsonc" format) on top of Default
// without consulting the environment.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()
	if err := decode(data, format, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return "json"
	default:
		return "yaml"
	}
}

func decode(data []byte, format string, cfg *Config) error {
	switch format {
	case "json", "jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	case "yaml", "yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
}

// ApplyEnv overrides the model and store DSN from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvModel); v != "" {
		c.Completion.Model = v
	}
	if v := getenv(EnvStoreDSN); v != "" {
		c.Store.DSN = v
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Agents) == 0 {
		errs = append(errs, errors.New("agents: at least one agent id is required"))
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, id := range c.Agents {
		switch {
		case strings.TrimSpace(id) == "":
			errs = append(errs, errors.New("agents: empty agent id"))
		case seen[id]:
			errs = append(errs, fmt.Errorf("agents: duplicate agent id %q", id))
		}
		seen[id] = true
	}

	switch c.Completion.Provider {
	case ProviderMock, ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("completion.provider: unknown provider %q", c.Completion.Provider))
	}
	if c.Completion.MaxAttempts < 1 {
		errs = append(errs, errors.New("completion.max_attempts: must be at least 1"))
	}
	if c.Completion.AttemptTimeout < 0 {
		errs = append(errs, errors.New("completion.attempt_timeout: must not be negative"))
	}

	if c.Memory.ContextWindowSize <= 0 {
		errs = append(errs, errors.New("memory.context_window_size: must be positive"))
	}
	if c.Loop.TickInterval <= 0 {
		errs = append(errs, errors.New("loop.tick_interval: must be positive"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn: required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.OpTimeout < 0 {
		errs = append(errs, errors.New("store.op_timeout: must not be negative"))
	}
	switch c.Store.Encoding {
	case "", "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("store.encoding: unknown encoding %q", c.Store.Encoding))
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}

// Duration is a time.Duration that reads "1s"-style strings from YAML and
// JSON as well as plain integers (nanoseconds).
type Duration time.Duration

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	return d.parse(strings.Trim(string(b), `"`))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprint(n) == s {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration %q", s)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentloop/completion"
	"github.com/hupe1980/agentloop/completion/anthropic"
	"github.com/hupe1980/agentloop/completion/openai"
	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/store"
	"github.com/hupe1980/agentloop/store/postgres"
	"github.com/hupe1980/agentloop/store/sqlite"
)

func newLogger(cfg config.LoggingConfig, w io.Writer) (*logging.AgentLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    w,
		Component: "agentloop",
	}), nil
}

// newClient builds the configured provider wrapped in bounded retries.
func newClient(cfg config.CompletionConfig, logger logging.Logger) (core.CompletionClient, error) {
	var client core.CompletionClient

	switch cfg.Provider {
	case config.ProviderMock:
		// the mock never fails, retries would only add noise
		return completion.NewMockClient(), nil
	case config.ProviderOpenAI:
		client = openai.NewClient(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		})
	case config.ProviderAnthropic:
		client = anthropic.NewClient(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = sdkanthropic.Model(cfg.Model)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		})
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}

	return completion.WithRetry(client, func(o *completion.RetryOptions) {
		o.MaxAttempts = cfg.MaxAttempts
		o.AttemptTimeout = cfg.AttemptTimeout.Std()
		o.Logger = logger
	}), nil
}

// newStore opens the configured backend. The returned close func releases
// every layer, outermost first.
func newStore(ctx context.Context, cfg config.StoreConfig) (core.Store, func() error, error) {
	var (
		s       core.Store
		closers []func() error
	)

	switch cfg.Driver {
	case config.DriverMemory:
		s = store.NewInMemoryStore()
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.DSN, func(o *sqlite.Options) { o.OpTimeout = cfg.OpTimeout.Std() })
		if err != nil {
			return nil, nil, err
		}
		s = db
		closers = append(closers, db.Close)
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DSN, func(o *postgres.Options) { o.OpTimeout = cfg.OpTimeout.Std() })
		if err != nil {
			return nil, nil, err
		}
		s = pg
		closers = append(closers, func() error { pg.Close(); return nil })
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if cfg.Compress {
		c, err := store.NewCompressed(s)
		if err != nil {
			_ = closeAll(closers)
			return nil, nil, err
		}
		s = c
		closers = append(closers, c.Close)
	}

	return s, func() error { return closeAll(closers) }, nil
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i]())
	}
	return errors.Join(errs...)
}

// newEngine wires every collaborator described by cfg.
func newEngine(ctx context.Context, cfg *config.Config, logger *logging.AgentLogger) (*engine.Engine, func() error, error) {
	client, err := newClient(cfg.Completion, logger.WithComponent("completion"))
	if err != nil {
		return nil, nil, err
	}

	codec, err := memory.CodecByName(cfg.Store.Encoding)
	if err != nil {
		return nil, nil, err
	}

	s, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(func(o *engine.Options) {
		o.AgentIDs = cfg.Agents
		o.Client = client
		o.Store = s
		o.Codec = codec
		o.Logger = logger
		o.Config = engine.Config{
			TickInterval:       cfg.Loop.TickInterval.Std(),
			Model:              cfg.Completion.Model,
			MaxTokens:          cfg.Completion.MaxTokens,
			ContextWindowSize:  cfg.Memory.ContextWindowSize,
			SummaryMaxTokens:   cfg.Memory.SummaryMaxTokens,
			SummaryPreamble:    cfg.Memory.SummaryPreamble,
			SummaryInstruction: cfg.Memory.SummaryInstruction,
		}
	})
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}

	return eng, func() error {
		return errors.Join(eng.Close(), closeStore())
	}, nil
}

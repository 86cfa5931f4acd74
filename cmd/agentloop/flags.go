package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/hupe1980/agentloop/config"
)

type runFlags struct {
	message string
	agent   string
	timeout time.Duration
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.message, "message", "m", "", "Initial user message delivered once the agents are up")
	fs.StringVarP(&f.agent, "agent", "a", "", "Recipient of --message (default: the first configured agent)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Stop after this duration (default: run until interrupted)")
}

// recipient resolves --agent against the configured agents.
func (f *runFlags) recipient(agents []string) (string, error) {
	if f.agent == "" {
		return agents[0], nil
	}
	for _, id := range agents {
		if id == f.agent {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown agent %q (configured: %s)", f.agent, strings.Join(agents, ", "))
}

// loadConfig reads --config and applies --log-level when it was given.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if fs.Changed("log-level") {
		level, err := fs.GetString("log-level")
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = level
	}

	return cfg, nil
}

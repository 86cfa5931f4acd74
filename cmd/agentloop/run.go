package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentloop/core"
)

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured agents until interrupted",
		Long: `Run starts one control loop per configured agent and blocks until SIGINT or
SIGTERM (or --timeout) stops them. With --message a user message is delivered
to --agent (default: the first configured agent) before the loops start.

A store fault stops the affected agent and makes run exit non-zero once every
agent has stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if flags.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, flags.timeout)
				defer cancel()
			}

			eng, closeEngine, err := newEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeEngine(); err != nil {
					logger.Warn("run.close", "error", err)
				}
			}()

			if flags.message != "" {
				to, err := flags.recipient(cfg.Agents)
				if err != nil {
					return err
				}
				if err := eng.Send(ctx, core.UserMessage(flags.message, to)); err != nil {
					return err
				}
			}

			logger.Info("run.start", "agents", cfg.Agents, "provider", cfg.Completion.Provider, "store", cfg.Store.Driver)

			err = eng.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			logger.Info("run.stop")
			return nil
		},
	}

	flags.register(cmd.Flags())

	return cmd
}

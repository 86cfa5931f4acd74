package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentloop",
		Short:         "Run autonomous agents with bounded memory",
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "Config file (default: ./agentloop.yaml, then the user config dir)")
	root.PersistentFlags().String("log-level", "", "Override logging.level (debug, info, warn, error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newParseCmd())
	root.AddCommand(newVersionCmd(version))

	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), struct {
				Version string `json:"version"`
			}{Version: version})
		},
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/capability/builtin"
	"github.com/hupe1980/agentloop/parser"
)

type parseResult struct {
	Action     string            `json:"action,omitempty"`
	Thoughts   string            `json:"thoughts,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Error      *parseFailure     `json:"error,omitempty"`
}

type parseFailure struct {
	Kind    parser.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// errParseFailed makes the command exit non-zero after the failure was printed.
var errParseFailed = errors.New("action text is invalid")

func newParseCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Validate action text against the built-in actions",
		Long: `Parse reads action text from --file or stdin and validates it exactly like an
agent's decision. The result is printed as JSON; an invalid text prints the
error kind and the message the agent would receive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				data []byte
				err  error
			)
			if file != "" && file != "-" {
				data, err = os.ReadFile(file)
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read action text: %w", err)
			}

			registry := capability.MustRegistry(builtin.Core())

			action, err := parser.Parse(registry, string(data))
			if err != nil {
				var pe *parser.ParseError
				if !errors.As(err, &pe) {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), parseResult{Error: &parseFailure{Kind: pe.Kind, Message: pe.Message}}); err != nil {
					return err
				}
				return errParseFailed
			}

			return printJSON(cmd.OutOrStdout(), parseResult{
				Action:     action.Name(),
				Thoughts:   action.Thoughts,
				Parameters: action.Parameters,
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File holding the action text (default: stdin)")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

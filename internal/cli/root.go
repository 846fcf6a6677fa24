// Package cli implements the polypay command line: every client operation
// as a cobra command printing JSON.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	baseURL    string
}

// Execute runs the command line in args and returns the process exit
// status. Failures are classified: 2 bad input, 3 credentials, 4 not found,
// 5 platform unavailable, 130 cancelled.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	closeErr := a.close()
	if err == nil && closeErr != nil {
		a.logger.Warn("shutdown incomplete", "error", closeErr)
	}
	return a.exitCode(ctx, cmd.CommandPath(), err)
}

func newRootCommand(a *app) *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:           "polypay",
		Short:         "Talk to the payments platform",
		Long:          `Create tokens, retrieve sources and manage the current customer's payment sources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd.Context(), &opts)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default ./polypay.yaml or ./configs/polypay.yaml)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "",
		"Platform API root, overrides api.base_url")

	root.AddCommand(
		newTokenCommand(a),
		newSourceCommand(a),
		newCustomerCommand(a),
		newEphemeralKeyCommand(a),
	)
	return root
}

func groupCommand(use, short string) *cobra.Command {
	return &cobra.Command{Use: use, Short: short}
}

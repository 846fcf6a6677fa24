package cli

import (
	"github.com/spf13/cobra"
)

func newEphemeralKeyCommand(a *app) *cobra.Command {
	cmd := groupCommand("ephemeral-key", "Obtain customer keys from the integration backend")
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Mint an ephemeral key for the configured customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.customers("CreateCustomerKey"); err != nil {
				return err
			}
			key, err := a.keys.Key(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(key)
		},
	})
	return cmd
}

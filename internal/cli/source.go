package cli

import (
	"github.com/spf13/cobra"

	"github.com/spounge-ai/polypay/pkg/apiclient"
)

func newSourceCommand(a *app) *cobra.Command {
	cmd := groupCommand("source", "Read sources with their client secret")
	cmd.AddCommand(newSourceGetCommand(a))
	return cmd
}

func newSourceGetCommand(a *app) *cobra.Command {
	var clientSecret string
	cmd := &cobra.Command{
		Use:   "get <source-id>",
		Short: "Retrieve a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				source *apiclient.Source
				err    error
			)
			// The handle follows the command context, so an interrupt
			// settles the completion with a cancellation error.
			h := a.client.RetrieveSourceAsync(cmd.Context(), args[0], clientSecret, func(s *apiclient.Source, e error) {
				source, err = s, e
			})
			<-h.Done()
			if err != nil {
				return err
			}
			return a.print(source)
		},
	}
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "The source's client secret")
	return cmd
}

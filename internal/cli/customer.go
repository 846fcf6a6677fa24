package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/spounge-ai/polypay/pkg/apiclient"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	"github.com/spounge-ai/polypay/pkg/patterns/batch"
)

func newCustomerCommand(a *app) *cobra.Command {
	cmd := groupCommand("customer", "Manage the customer the ephemeral key belongs to")
	cmd.AddCommand(
		newCustomerGetCommand(a),
		newCustomerUpdateCommand(a),
		newCustomerAttachCommand(a),
		newCustomerDetachCommand(a),
	)
	return cmd
}

func newCustomerGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Retrieve the customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := a.customers("RetrieveCustomer")
			if err != nil {
				return err
			}
			customer, err := cc.RetrieveCustomer(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(customer)
		},
	}
}

func newCustomerUpdateCommand(a *app) *cobra.Command {
	var (
		email         string
		description   string
		defaultSource string
		metadata      map[string]string
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update fields of the customer",
		Long:  `Only the flags given are sent; the platform keeps every other field.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := a.customers("UpdateCustomer")
			if err != nil {
				return err
			}

			var params map[string]any
			set := func(name string, value any) {
				if params == nil {
					params = map[string]any{}
				}
				params[name] = value
			}
			flags := cmd.Flags()
			if flags.Changed("email") {
				set("email", email)
			}
			if flags.Changed("description") {
				set("description", description)
			}
			if flags.Changed("default-source") {
				set("default_source", defaultSource)
			}
			if len(metadata) > 0 {
				set("metadata", metadata)
			}

			customer, err := cc.UpdateCustomer(cmd.Context(), params)
			if err != nil {
				return err
			}
			return a.print(customer)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&email, "email", "", "Email address")
	flags.StringVar(&description, "description", "", "Free-form description")
	flags.StringVar(&defaultSource, "default-source", "", "Id of an attached source to charge by default")
	flags.StringToStringVar(&metadata, "metadata", nil, "Metadata entries, key=value")
	return cmd
}

type attachOutcome struct {
	Source string                   `json:"source"`
	Result *apiclient.PaymentSource `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func newCustomerAttachCommand(a *app) *cobra.Command {
	var (
		concurrency     int
		continueOnError bool
	)
	cmd := &cobra.Command{
		Use:   "attach <source-or-token-id>...",
		Short: "Attach sources or card tokens to the customer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := a.customers("AddSource")
			if err != nil {
				return err
			}

			proc := &batch.Processor[string, *apiclient.PaymentSource]{
				MaxConcurrency: concurrency,
				Process:        cc.AddSource,
			}
			result := proc.ProcessBatch(cmd.Context(), args, continueOnError)

			outcomes := make([]attachOutcome, len(args))
			var firstErr error
			for i, item := range result.Items {
				outcomes[i] = attachOutcome{Source: args[i], Result: item.Result}
				if item.Error == nil {
					continue
				}
				outcomes[i].Error = item.Error.Error()
				// Report the failure that stopped the batch, not the
				// requests it cancelled.
				if errors.Is(item.Error, batch.ErrSkipped) {
					continue
				}
				if firstErr == nil || errors.Is(firstErr, apierrors.ErrCancelled) {
					firstErr = item.Error
				}
			}
			if err := a.print(outcomes); err != nil {
				return err
			}
			if firstErr != nil {
				a.logger.Warn("attach finished with failures",
					"failed", result.Failed(), "total", len(args))
			}
			return firstErr
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Attach requests in flight at once")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep attaching after a failure")
	return cmd
}

func newCustomerDetachCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <source-id>",
		Short: "Detach a source from the customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := a.customers("DetachSource")
			if err != nil {
				return err
			}
			detached, err := cc.DetachSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(detached)
		},
	}
}

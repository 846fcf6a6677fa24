package cli

import (
	"github.com/spf13/cobra"
)

type cardFlags struct {
	number   string
	expMonth int
	expYear  int
	cvc      string
	name     string
	zip      string
}

func (f cardFlags) params(cmd *cobra.Command) map[string]any {
	card := map[string]any{
		"number":    f.number,
		"exp_month": f.expMonth,
		"exp_year":  f.expYear,
	}
	if f.cvc != "" {
		card["cvc"] = f.cvc
	}
	if f.name != "" {
		card["name"] = f.name
	}
	if cmd.Flags().Changed("zip") {
		card["address_zip"] = f.zip
	}
	return map[string]any{"card": card}
}

func newTokenCommand(a *app) *cobra.Command {
	cmd := groupCommand("token", "Tokenize payment details with the publishable key")
	cmd.AddCommand(newTokenCreateCommand(a))
	return cmd
}

func newTokenCreateCommand(a *app) *cobra.Command {
	var card cardFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a card token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.client.CreateToken(cmd.Context(), card.params(cmd))
			if err != nil {
				return err
			}
			return a.print(token)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&card.number, "number", "", "Card number")
	flags.IntVar(&card.expMonth, "exp-month", 0, "Expiry month (1-12)")
	flags.IntVar(&card.expYear, "exp-year", 0, "Four digit expiry year")
	flags.StringVar(&card.cvc, "cvc", "", "Card verification code")
	flags.StringVar(&card.name, "name", "", "Cardholder name")
	flags.StringVar(&card.zip, "zip", "", "Billing postal code")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

package testutil

import "github.com/spounge-ai/polypay/internal/mockplatform"

// Fixture credentials and ids seeded by DefaultSeed.
const (
	PublishableKey     = "pk_test_polypay"
	SecretKey          = "sk_test_polypay"
	SourceID           = "src_123"
	SourceClientSecret = "src_123_secret_abc"
	CustomerID         = "cus_123"
	CustomerEmail      = "jenny.rosen@example.com"
	DetachableSourceID = "src_attached"
)

// Config controls the platform an Env runs.
type Config struct {
	// Seed replaces DefaultSeed when non-nil.
	Seed     *mockplatform.Seed
	Platform mockplatform.Options
}

// DefaultSeed is a customer with two attached sources and a spare source.
func DefaultSeed() mockplatform.Seed {
	return mockplatform.Seed{
		PublishableKeys: []string{PublishableKey},
		SecretKeys:      []string{SecretKey},
		Sources: []mockplatform.SourceSeed{
			{ID: SourceID, ClientSecret: SourceClientSecret, Amount: 1099, Currency: "usd", OwnerName: "Jenny Rosen"},
			{ID: DetachableSourceID, Currency: "eur"},
			{ID: "src_spare", Currency: "usd"},
		},
		Customers: []mockplatform.CustomerSeed{{
			ID:          CustomerID,
			Email:       CustomerEmail,
			Description: "fixture customer",
			Metadata:    map[string]string{"tier": "gold"},
			Sources:     []string{SourceID, DetachableSourceID},
		}},
	}
}

package mockplatform

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spounge-ai/polypay/pkg/apiclient"
)

// Seed is the initial platform state, usually read from a YAML fixture.
type Seed struct {
	PublishableKeys []string           `yaml:"publishable_keys"`
	SecretKeys      []string           `yaml:"secret_keys"`
	Sources         []SourceSeed       `yaml:"sources"`
	Customers       []CustomerSeed     `yaml:"customers"`
	EphemeralKeys   []EphemeralKeySeed `yaml:"ephemeral_keys"`
}

type SourceSeed struct {
	ID           string            `yaml:"id"`
	ClientSecret string            `yaml:"client_secret"`
	Type         string            `yaml:"type"`
	Status       string            `yaml:"status"`
	Amount       int64             `yaml:"amount"`
	Currency     string            `yaml:"currency"`
	Flow         string            `yaml:"flow"`
	Usage        string            `yaml:"usage"`
	OwnerEmail   string            `yaml:"owner_email"`
	OwnerName    string            `yaml:"owner_name"`
	Metadata     map[string]string `yaml:"metadata"`
	Card         map[string]any    `yaml:"card"`
}

type CustomerSeed struct {
	ID          string            `yaml:"id"`
	Email       string            `yaml:"email"`
	Description string            `yaml:"description"`
	Metadata    map[string]string `yaml:"metadata"`
	// Sources lists ids of seeded sources attached to the customer.
	Sources []string `yaml:"sources"`
}

// EphemeralKeySeed pins a known secret so fixtures can be used from a shell.
type EphemeralKeySeed struct {
	Secret    string        `yaml:"secret"`
	Customer  string        `yaml:"customer"`
	ExpiresIn time.Duration `yaml:"expires_in"`
}

// LoadSeedFile reads a YAML fixture from path and applies it.
func (p *Platform) LoadSeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return p.LoadSeed(f)
}

func (p *Platform) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && err != io.EOF {
		return fmt.Errorf("decode seed: %w", err)
	}
	return p.Apply(seed)
}

// Apply adds seed to the current state. Later entries replace earlier ones
// with the same id.
func (p *Platform) Apply(seed Seed) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range seed.PublishableKeys {
		p.publishableKeys[k] = true
	}
	for _, k := range seed.SecretKeys {
		p.secretKeys[k] = true
	}

	created := p.now().Unix()
	for _, s := range seed.Sources {
		if s.ID == "" {
			return fmt.Errorf("seed source without id")
		}
		src := &apiclient.Source{
			ID:           s.ID,
			Object:       "source",
			Type:         orDefault(s.Type, "card"),
			Status:       orDefault(s.Status, "chargeable"),
			ClientSecret: s.ClientSecret,
			Amount:       s.Amount,
			Currency:     s.Currency,
			Flow:         orDefault(s.Flow, "none"),
			Usage:        orDefault(s.Usage, "reusable"),
			Metadata:     s.Metadata,
			Created:      created,
			Card:         s.Card,
		}
		if s.OwnerEmail != "" || s.OwnerName != "" {
			src.Owner = &apiclient.SourceOwner{Email: s.OwnerEmail, Name: s.OwnerName}
		}
		if src.ClientSecret == "" {
			src.ClientSecret = s.ID + "_secret_" + newID("cs")[3:]
		}
		p.sources[src.ID] = src
	}

	for _, c := range seed.Customers {
		if c.ID == "" {
			return fmt.Errorf("seed customer without id")
		}
		cus := &apiclient.Customer{
			ID:          c.ID,
			Object:      "customer",
			Email:       c.Email,
			Description: c.Description,
			Metadata:    c.Metadata,
			Created:     created,
			Sources:     &apiclient.SourceList{Object: "list", URL: "/v1/customers/" + c.ID + "/sources"},
		}
		for _, id := range c.Sources {
			src, ok := p.sources[id]
			if !ok {
				return fmt.Errorf("customer %s: unknown source %s", c.ID, id)
			}
			s := *src
			cus.Sources.Data = append(cus.Sources.Data, apiclient.PaymentSource{ID: s.ID, Object: "source", Source: &s})
		}
		cus.Sources.TotalCount = len(cus.Sources.Data)
		if len(cus.Sources.Data) > 0 {
			cus.DefaultSource = cus.Sources.Data[0].ID
		}
		p.customers[cus.ID] = cus
	}

	now := p.now()
	for _, k := range seed.EphemeralKeys {
		if _, ok := p.customers[k.Customer]; !ok {
			return fmt.Errorf("ephemeral key %s: unknown customer %s", k.Secret, k.Customer)
		}
		ttl := k.ExpiresIn
		if ttl == 0 {
			ttl = p.opts.EphemeralKeyTTL
		}
		key := p.issueKeyLocked(k.Customer, ttl)
		if k.Secret != "" {
			delete(p.ephemeralKeys, key.Secret)
			key.Secret = k.Secret
			p.ephemeralKeys[key.Secret] = key
		}
		key.Created = now.Unix()
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

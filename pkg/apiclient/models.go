package apiclient

import (
	"encoding/json"
	"time"
)

// Address is the postal address shape shared by owners and shipping details.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Card struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
	Funding  string `json:"funding,omitempty"`
	Country  string `json:"country,omitempty"`
	Name     string `json:"name,omitempty"`
	Customer string `json:"customer,omitempty"`
}

type BankAccount struct {
	ID                string `json:"id"`
	Object            string `json:"object"`
	AccountHolderName string `json:"account_holder_name,omitempty"`
	AccountHolderType string `json:"account_holder_type,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	Country           string `json:"country,omitempty"`
	Currency          string `json:"currency,omitempty"`
	Last4             string `json:"last4,omitempty"`
	RoutingNumber     string `json:"routing_number,omitempty"`
	Status            string `json:"status,omitempty"`
}

// Token is a single-use tokenized payment instrument.
type Token struct {
	ID          string       `json:"id"`
	Object      string       `json:"object"`
	Type        string       `json:"type,omitempty"`
	Livemode    bool         `json:"livemode"`
	Created     int64        `json:"created"`
	Used        bool         `json:"used"`
	Card        *Card        `json:"card,omitempty"`
	BankAccount *BankAccount `json:"bank_account,omitempty"`
}

type SourceOwner struct {
	Address *Address `json:"address,omitempty"`
	Email   string   `json:"email,omitempty"`
	Name    string   `json:"name,omitempty"`
	Phone   string   `json:"phone,omitempty"`
}

type SourceRedirect struct {
	ReturnURL string `json:"return_url,omitempty"`
	Status    string `json:"status,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Source is a reusable or single-use payment instrument. Type-specific
// details (card, sepa_debit, ...) stay undecoded in Details.
type Source struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	Type         string            `json:"type"`
	Status       string            `json:"status,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Amount       int64             `json:"amount,omitempty"`
	Currency     string            `json:"currency,omitempty"`
	Flow         string            `json:"flow,omitempty"`
	Usage        string            `json:"usage,omitempty"`
	Owner        *SourceOwner      `json:"owner,omitempty"`
	Redirect     *SourceRedirect   `json:"redirect,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Livemode     bool              `json:"livemode"`
	Created      int64             `json:"created"`
	Card         map[string]any    `json:"card,omitempty"`
}

// PaymentSource is one entry of a customer's sources: either a Card or a
// Source, chosen by the object field. Deleted is set on detach responses.
type PaymentSource struct {
	ID      string
	Object  string
	Deleted bool
	Card    *Card
	Source  *Source
}

type paymentSourceHead struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted,omitempty"`
}

func (p *PaymentSource) UnmarshalJSON(data []byte) error {
	var head paymentSourceHead
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*p = PaymentSource{ID: head.ID, Object: head.Object, Deleted: head.Deleted}

	switch head.Object {
	case "card":
		p.Card = new(Card)
		return json.Unmarshal(data, p.Card)
	case "source":
		p.Source = new(Source)
		return json.Unmarshal(data, p.Source)
	}
	return nil
}

func (p PaymentSource) MarshalJSON() ([]byte, error) {
	switch {
	case p.Deleted:
		return json.Marshal(paymentSourceHead{ID: p.ID, Object: p.Object, Deleted: true})
	case p.Card != nil:
		return json.Marshal(p.Card)
	case p.Source != nil:
		return json.Marshal(p.Source)
	}
	return json.Marshal(paymentSourceHead{ID: p.ID, Object: p.Object})
}

type SourceList struct {
	Object     string          `json:"object"`
	Data       []PaymentSource `json:"data"`
	HasMore    bool            `json:"has_more"`
	TotalCount int             `json:"total_count"`
	URL        string          `json:"url,omitempty"`
}

type Shipping struct {
	Name    string   `json:"name,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

type Customer struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	Email         string            `json:"email,omitempty"`
	Description   string            `json:"description,omitempty"`
	DefaultSource string            `json:"default_source,omitempty"`
	Shipping      *Shipping         `json:"shipping,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Sources       *SourceList       `json:"sources,omitempty"`
	Livemode      bool              `json:"livemode"`
	Created       int64             `json:"created"`
}

// AssociatedObject links an ephemeral key to the object it grants access to.
type AssociatedObject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EphemeralKey is a short-lived credential scoped to one customer. It is
// minted by the integration's backend; the client only reads it per call.
type EphemeralKey struct {
	ID                string             `json:"id"`
	Object            string             `json:"object"`
	Secret            string             `json:"secret"`
	Created           int64              `json:"created"`
	Expires           int64              `json:"expires"`
	Livemode          bool               `json:"livemode"`
	AssociatedObjects []AssociatedObject `json:"associated_objects"`
}

// CustomerID returns the id of the associated customer, or "" if none.
func (k *EphemeralKey) CustomerID() string {
	for _, obj := range k.AssociatedObjects {
		if obj.Type == "customer" {
			return obj.ID
		}
	}
	return ""
}

func (k *EphemeralKey) ExpiresAt() time.Time {
	return time.Unix(k.Expires, 0)
}

// Expired reports whether the key is no longer usable at now.
func (k *EphemeralKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt())
}

// ExpiresWithin reports whether the key expires before now+d.
func (k *EphemeralKey) ExpiresWithin(d time.Duration, now time.Time) bool {
	return k.Expired(now.Add(d))
}

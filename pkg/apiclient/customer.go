package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/spounge-ai/polypay/pkg/apiclient/form"
	"github.com/spounge-ai/polypay/pkg/async"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
)

const (
	opRetrieveCustomer = "RetrieveCustomer"
	opUpdateCustomer   = "UpdateCustomer"
	opAddSource        = "AddSource"
	opDetachSource     = "DetachSource"
)

// CustomerClient manages the customer an ephemeral key is scoped to. It holds
// transport configuration only; the credential is supplied per call and never
// retained.
type CustomerClient struct {
	config Config
}

// NewCustomerClient builds a customer client without a publishable key.
func NewCustomerClient(cfg Config) *CustomerClient {
	return &CustomerClient{config: cfg.withDefaults()}
}

// RetrieveCustomer fetches the customer associated with key.
func (c *CustomerClient) RetrieveCustomer(ctx context.Context, key *EphemeralKey) (*Customer, error) {
	req, err := retrieveCustomerRequest(key, time.Now())
	if err != nil {
		return nil, err
	}
	return sendFor[Customer](ctx, c.config, req)
}

func (c *CustomerClient) RetrieveCustomerAsync(ctx context.Context, key *EphemeralKey, done async.Completion[*Customer]) *async.Handle {
	req, err := retrieveCustomerRequest(key, time.Now())
	if err != nil {
		return async.Fail(c.config.Executor, err, done)
	}
	return goFor(ctx, c.config, req, done)
}

// UpdateCustomer applies params as a partial update. Fields absent from
// params are left as they are on the platform.
func (c *CustomerClient) UpdateCustomer(ctx context.Context, params map[string]any, key *EphemeralKey) (*Customer, error) {
	req, err := updateCustomerRequest(params, key, time.Now())
	if err != nil {
		return nil, err
	}
	return sendFor[Customer](ctx, c.config, req)
}

func (c *CustomerClient) UpdateCustomerAsync(ctx context.Context, params map[string]any, key *EphemeralKey, done async.Completion[*Customer]) *async.Handle {
	req, err := updateCustomerRequest(params, key, time.Now())
	if err != nil {
		return async.Fail(c.config.Executor, err, done)
	}
	return goFor(ctx, c.config, req, done)
}

// AddSource attaches an existing source or token to the customer. Repeating
// the call is not guaranteed to be harmless; the platform decides.
func (c *CustomerClient) AddSource(ctx context.Context, sourceID string, key *EphemeralKey) (*PaymentSource, error) {
	req, err := addSourceRequest(sourceID, key, time.Now())
	if err != nil {
		return nil, err
	}
	return sendFor[PaymentSource](ctx, c.config, req)
}

func (c *CustomerClient) AddSourceAsync(ctx context.Context, sourceID string, key *EphemeralKey, done async.Completion[*PaymentSource]) *async.Handle {
	req, err := addSourceRequest(sourceID, key, time.Now())
	if err != nil {
		return async.Fail(c.config.Executor, err, done)
	}
	return goFor(ctx, c.config, req, done)
}

// DetachSource removes a source from the customer. Detaching a source that is
// not attached fails with NotFound.
func (c *CustomerClient) DetachSource(ctx context.Context, sourceID string, key *EphemeralKey) (*PaymentSource, error) {
	req, err := detachSourceRequest(sourceID, key, time.Now())
	if err != nil {
		return nil, err
	}
	return sendFor[PaymentSource](ctx, c.config, req)
}

func (c *CustomerClient) DetachSourceAsync(ctx context.Context, sourceID string, key *EphemeralKey, done async.Completion[*PaymentSource]) *async.Handle {
	req, err := detachSourceRequest(sourceID, key, time.Now())
	if err != nil {
		return async.Fail(c.config.Executor, err, done)
	}
	return goFor(ctx, c.config, req, done)
}

// authorize checks key locally so that an unusable key never reaches the
// network. It returns the customer id the key is scoped to.
func authorize(op string, key *EphemeralKey, now time.Time) (string, error) {
	switch {
	case key == nil:
		return "", apierrors.Unauthorized(op, "ephemeral key is missing")
	case key.Secret == "":
		return "", apierrors.Unauthorized(op, "ephemeral key %s has no secret", key.ID)
	case key.Expired(now):
		return "", apierrors.Unauthorized(op, "ephemeral key %s expired at %s", key.ID, key.ExpiresAt().UTC().Format(time.RFC3339))
	}
	customerID := key.CustomerID()
	if customerID == "" {
		return "", apierrors.Unauthorized(op, "ephemeral key %s is not associated with a customer", key.ID)
	}
	return customerID, nil
}

func customerPath(customerID string) string {
	return "/customers/" + url.PathEscape(customerID)
}

func retrieveCustomerRequest(key *EphemeralKey, now time.Time) (request, error) {
	customerID, err := authorize(opRetrieveCustomer, key, now)
	if err != nil {
		return request{}, err
	}
	return request{
		op:         opRetrieveCustomer,
		method:     http.MethodGet,
		path:       customerPath(customerID),
		credential: key.Secret,
	}, nil
}

func updateCustomerRequest(params map[string]any, key *EphemeralKey, now time.Time) (request, error) {
	customerID, err := authorize(opUpdateCustomer, key, now)
	if err != nil {
		return request{}, err
	}
	if params == nil {
		return request{}, apierrors.InvalidInput(opUpdateCustomer, "update parameters are missing")
	}
	values, err := form.Encode(params)
	if err != nil {
		return request{}, apierrors.New(apierrors.KindInvalidInput, opUpdateCustomer, err)
	}
	return request{
		op:         opUpdateCustomer,
		method:     http.MethodPost,
		path:       customerPath(customerID),
		credential: key.Secret,
		form:       values,
	}, nil
}

func addSourceRequest(sourceID string, key *EphemeralKey, now time.Time) (request, error) {
	customerID, err := authorize(opAddSource, key, now)
	if err != nil {
		return request{}, err
	}
	if err := validate.Var(sourceID, "required,object_id"); err != nil {
		return request{}, apierrors.InvalidInput(opAddSource, "invalid source id %q", sourceID)
	}
	return request{
		op:         opAddSource,
		method:     http.MethodPost,
		path:       customerPath(customerID) + "/sources",
		credential: key.Secret,
		form:       url.Values{"source": {sourceID}},
	}, nil
}

func detachSourceRequest(sourceID string, key *EphemeralKey, now time.Time) (request, error) {
	customerID, err := authorize(opDetachSource, key, now)
	if err != nil {
		return request{}, err
	}
	if err := validate.Var(sourceID, "required,object_id"); err != nil {
		return request{}, apierrors.InvalidInput(opDetachSource, "invalid source id %q", sourceID)
	}
	return request{
		op:         opDetachSource,
		method:     http.MethodDelete,
		path:       customerPath(customerID) + "/sources/" + url.PathEscape(sourceID),
		credential: key.Secret,
	}, nil
}

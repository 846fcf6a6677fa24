// Package apiclient talks to the payments platform: token creation with a
// publishable key, source retrieval with a client secret, and customer
// management with an ephemeral key.
//
// Every operation has a blocking form that takes a context and an Async form
// that returns immediately and delivers its outcome exactly once to a
// completion on the configured executor.
package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/spounge-ai/polypay/pkg/apiclient/form"
	"github.com/spounge-ai/polypay/pkg/async"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	customvalidator "github.com/spounge-ai/polypay/pkg/validator"
)

const (
	opCreateToken    = "CreateToken"
	opRetrieveSource = "RetrieveSource"
)

var validate = customvalidator.New()

// Client issues requests authenticated with a publishable key. A Client is
// immutable and safe for concurrent use; the With methods return new clients.
type Client struct {
	config         Config
	publishableKey string
}

// New builds a client for publishableKey. No network I/O happens here.
func New(publishableKey string, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(publishableKey, cfg)
}

// NewWithConfig builds a client from a complete configuration. Zero fields
// of cfg take their defaults.
func NewWithConfig(publishableKey string, cfg Config) (*Client, error) {
	if err := validate.Var(publishableKey, "required,publishable_key"); err != nil {
		return nil, apierrors.InvalidInput("New", "publishable key must be a non-empty pk_ key")
	}
	return &Client{config: cfg.withDefaults(), publishableKey: publishableKey}, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config { return c.config }

func (c *Client) BaseURL() string { return c.config.BaseURL }

func (c *Client) HTTPClient() *http.Client { return c.config.HTTPClient }

// WithBaseURL returns a client that sends subsequent requests to baseURL.
// Requests already issued through c are unaffected.
func (c *Client) WithBaseURL(baseURL string) *Client {
	next := *c
	next.config.BaseURL = baseURL
	return &next
}

// WithHTTPClient returns a client that uses hc for subsequent requests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	next := *c
	if hc == nil {
		hc = http.DefaultClient
	}
	next.config.HTTPClient = hc
	return &next
}

// Customers returns a customer client sharing c's transport configuration.
// It carries no credential; each call supplies an ephemeral key.
func (c *Client) Customers() *CustomerClient {
	return &CustomerClient{config: c.config}
}

// CreateToken tokenizes params (for example card[number], card[exp_month]).
func (c *Client) CreateToken(ctx context.Context, params map[string]any) (*Token, error) {
	req, err := c.tokenRequest(params)
	if err != nil {
		return nil, err
	}
	return sendFor[Token](ctx, c.config, req)
}

// CreateTokenAsync is CreateToken delivered to done. Invalid params complete
// with InvalidInput without touching the network.
func (c *Client) CreateTokenAsync(ctx context.Context, params map[string]any, done async.Completion[*Token]) *async.Handle {
	req, err := c.tokenRequest(params)
	if err != nil {
		return async.Fail(c.config.Executor, err, done)
	}
	return goFor(ctx, c.config, req, done)
}

func (c *Client) tokenRequest(params map[string]any) (request, error) {
	if len(params) == 0 {
		return request{}, apierrors.InvalidInput(opCreateToken, "token parameters are empty")
	}
	values, err := form.Encode(params)
	if err != nil {
		return request{}, apierrors.New(apierrors.KindInvalidInput, opCreateToken, err)
	}
	return request{
		op:         opCreateToken,
		method:     http.MethodPost,
		path:       "/tokens",
		credential: c.publishableKey,
		form:       values,
	}, nil
}

// RetrieveSource fetches source id using its client secret.
func (c *Client) RetrieveSource(ctx context.Context, id, clientSecret string) (*Source, error) {
	req, err := sourceRequest(id, clientSecret)
	if err != nil {
		return nil, err
	}
	return sendFor[Source](ctx, c.config, req)
}

// RetrieveSourceAsync is RetrieveSource delivered to done. Cancelling the
// returned handle before the response settles completes done once with an
// error matching ErrCancelled; a response arriving later is dropped.
func (c *Client) RetrieveSourceAsync(ctx context.Context, id, clientSecret string, done async.Completion[*Source]) *async.Handle {
	req, err := sourceRequest(id, clientSecret)
	if err != nil {
		return async.Fail(c.config.Executor, err, done)
	}
	return goFor(ctx, c.config, req, done)
}

func sourceRequest(id, clientSecret string) (request, error) {
	if err := validate.Var(id, "required,object_id"); err != nil {
		return request{}, apierrors.InvalidInput(opRetrieveSource, "invalid source id %q", id)
	}
	if clientSecret == "" {
		return request{}, apierrors.Unauthorized(opRetrieveSource, "client secret is missing")
	}
	return request{
		op:         opRetrieveSource,
		method:     http.MethodGet,
		path:       "/sources/" + url.PathEscape(id),
		credential: clientSecret,
		query:      url.Values{"client_secret": {clientSecret}},
	}, nil
}

func sendFor[T any](ctx context.Context, cfg Config, req request) (*T, error) {
	out := new(T)
	if err := cfg.send(ctx, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func goFor[T any](ctx context.Context, cfg Config, req request, done async.Completion[*T]) *async.Handle {
	return async.Go(ctx, cfg.Executor, req.op, func(ctx context.Context) (*T, error) {
		return sendFor[T](ctx, cfg, req)
	}, done)
}

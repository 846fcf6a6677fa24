// Package ephemeralkey obtains and caches the short-lived customer keys that
// authorize customer operations.
package ephemeralkey

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/spounge-ai/polypay/pkg/apiclient"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	"github.com/spounge-ai/polypay/pkg/execution"
)

const opCreateKey = "CreateCustomerKey"

// Provider mints a new ephemeral key for the current customer. The
// integration's backend implements this, usually behind an HTTP endpoint.
type Provider interface {
	CreateCustomerKey(ctx context.Context, apiVersion string) (*apiclient.EphemeralKey, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, apiVersion string) (*apiclient.EphemeralKey, error)

func (f ProviderFunc) CreateCustomerKey(ctx context.Context, apiVersion string) (*apiclient.EphemeralKey, error) {
	return f(ctx, apiVersion)
}

// HTTPProvider asks a backend endpoint for a key by POSTing api_version (and
// customer when set). Transport failures, throttling and 5xx responses are
// retried according to Retry.
type HTTPProvider struct {
	Endpoint   string
	CustomerID string
	// AuthToken is sent as a bearer credential when non-empty.
	AuthToken  string
	HTTPClient *http.Client
	Retry      execution.RetryPolicy
	Logger     *slog.Logger
}

// NewHTTPProvider returns a provider with the default retry policy.
func NewHTTPProvider(endpoint, customerID, authToken string) *HTTPProvider {
	retry := execution.DefaultRetryPolicy
	retry.ShouldRetry = apierrors.Retryable
	return &HTTPProvider{
		Endpoint:   endpoint,
		CustomerID: customerID,
		AuthToken:  authToken,
		HTTPClient: http.DefaultClient,
		Retry:      retry,
		Logger:     slog.Default(),
	}
}

func (p *HTTPProvider) CreateCustomerKey(ctx context.Context, apiVersion string) (*apiclient.EphemeralKey, error) {
	attempt := 0
	return execution.WithRetry(ctx, p.Retry, func(ctx context.Context) (*apiclient.EphemeralKey, error) {
		attempt++
		key, err := p.fetch(ctx, apiVersion)
		if err != nil && p.Logger != nil {
			p.Logger.WarnContext(ctx, "ephemeral key request failed",
				"attempt", attempt, "endpoint", p.Endpoint, "error", err)
		}
		return key, err
	})
}

func (p *HTTPProvider) fetch(ctx context.Context, apiVersion string) (*apiclient.EphemeralKey, error) {
	form := url.Values{"api_version": {apiVersion}}
	if p.CustomerID != "" {
		form.Set("customer", p.CustomerID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apierrors.InvalidInput(opCreateKey, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", apiVersion)
	if p.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.AuthToken)
	}

	hc := p.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, apierrors.FromTransport(opCreateKey, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apierrors.FromTransport(opCreateKey, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierrors.FromResponse(opCreateKey, resp.StatusCode, resp.Header.Get("Request-Id"), data)
	}

	var key apiclient.EphemeralKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, apierrors.Decoding(opCreateKey, resp.StatusCode, err)
	}
	if key.Secret == "" || key.Expires == 0 {
		return nil, apierrors.Decoding(opCreateKey, resp.StatusCode, errIncompleteKey)
	}
	return &key, nil
}

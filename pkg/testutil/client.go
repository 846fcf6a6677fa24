// Package testutil runs the fake platform behind an httptest server and
// builds clients pointed at it.
package testutil

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/polypay/internal/mockplatform"
	"github.com/spounge-ai/polypay/pkg/apiclient"
)

// Env is one isolated platform with its server. Everything is torn down by
// t.Cleanup.
type Env struct {
	Platform *mockplatform.Platform
	Server   *httptest.Server
	Logger   *slog.Logger
}

func New(t testing.TB, cfg Config) *Env {
	t.Helper()

	if cfg.Platform.Logger == nil {
		cfg.Platform.Logger = slog.New(slog.DiscardHandler)
	}
	seed := DefaultSeed()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	p := mockplatform.New(cfg.Platform)
	require.NoError(t, p.Apply(seed))

	srv := httptest.NewServer(p.Handler())
	t.Cleanup(srv.Close)

	return &Env{Platform: p, Server: srv, Logger: cfg.Platform.Logger}
}

// BaseURL is the API root of the fake platform.
func (e *Env) BaseURL() string {
	return e.Server.URL + "/v1"
}

// Client returns a client for PublishableKey aimed at the fake platform.
func (e *Env) Client(t testing.TB, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	base := []apiclient.Option{
		apiclient.WithBaseURL(e.BaseURL()),
		apiclient.WithHTTPClient(e.Server.Client()),
		apiclient.WithLogger(e.Logger),
	}
	c, err := apiclient.New(PublishableKey, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

// Key issues an ephemeral key for the fixture customer.
func (e *Env) Key(ttl time.Duration) *apiclient.EphemeralKey {
	return e.Platform.IssueEphemeralKey(CustomerID, ttl)
}

package ephemeralkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spounge-ai/polypay/pkg/apiclient"
	"github.com/spounge-ai/polypay/pkg/cache"
)

const (
	// DefaultRefreshMargin is how long before expiry a cached key is replaced.
	DefaultRefreshMargin = time.Minute
	// DefaultRefreshTimeout bounds one provider call, which is detached from
	// the callers waiting on it.
	DefaultRefreshTimeout = 30 * time.Second
)

var (
	errIncompleteKey = errors.New("ephemeral key has no secret or expiry")
	// ErrExpiredKey is returned when the provider hands out a key that is
	// already unusable.
	ErrExpiredKey = errors.New("provider returned an expired ephemeral key")
)

// Manager hands out the current key, asking the provider for a new one when
// the cached key is missing or close to expiry. Concurrent refreshes share
// one provider call. Manager implements apiclient.KeySource.
type Manager struct {
	provider       Provider
	apiVersion     string
	refreshMargin  time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger

	keys     *cache.Cache[string, *apiclient.EphemeralKey]
	refresh  singleflight.Group
	cacheKey string
}

var _ apiclient.KeySource = (*Manager)(nil)

type Option func(*Manager)

func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) { m.refreshMargin = d }
}

// WithRefreshTimeout bounds each provider call; zero or less disables the bound.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

func WithAPIVersion(v string) Option {
	return func(m *Manager) { m.apiVersion = v }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(provider Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:       provider,
		apiVersion:     apiclient.APIVersion(),
		refreshMargin:  DefaultRefreshMargin,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cacheKey = "customer_key:" + m.apiVersion
	m.keys = cache.New[string, *apiclient.EphemeralKey](
		cache.WithCleanupInterval[string, *apiclient.EphemeralKey](0),
		cache.WithClock[string, *apiclient.EphemeralKey](m.now),
	)
	return m
}

// Key returns a key that stays valid for at least the refresh margin.
// Cancelling ctx abandons the wait but not a refresh other callers share.
func (m *Manager) Key(ctx context.Context) (*apiclient.EphemeralKey, error) {
	if key, ok := m.cached(ctx); ok {
		return key, nil
	}

	ch := m.refresh.DoChan(m.cacheKey, func() (any, error) {
		return m.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.logger.DebugContext(ctx, "ephemeral key refresh shared")
		}
		return res.Val.(*apiclient.EphemeralKey), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) fetch(ctx context.Context) (*apiclient.EphemeralKey, error) {
	if key, ok := m.cached(ctx); ok {
		return key, nil
	}
	if m.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.refreshTimeout)
		defer cancel()
	}

	key, err := m.provider.CreateCustomerKey(ctx, m.apiVersion)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, errIncompleteKey
	}
	if key.Expired(m.now()) {
		return nil, fmt.Errorf("%w: %s", ErrExpiredKey, key.ID)
	}
	m.keys.SetUntil(ctx, m.cacheKey, key, key.ExpiresAt())
	m.logger.DebugContext(ctx, "ephemeral key refreshed",
		"key_id", key.ID, "customer", key.CustomerID(), "expires_at", key.ExpiresAt())
	return key, nil
}

// Invalidate drops the cached key, for example after the platform rejected it.
func (m *Manager) Invalidate(ctx context.Context) {
	m.keys.Delete(ctx, m.cacheKey)
}

// Close releases the key cache.
func (m *Manager) Close() {
	m.keys.Stop()
}

func (m *Manager) cached(ctx context.Context) (*apiclient.EphemeralKey, bool) {
	key, ok := m.keys.Get(ctx, m.cacheKey)
	if !ok || key == nil || key.ExpiresWithin(m.refreshMargin, m.now()) {
		return nil, false
	}
	return key, true
}

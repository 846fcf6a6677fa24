// Package mockplatform is an in-memory stand-in for the payments platform. It
// speaks the same HTTP surface the client uses and is used by tests and by
// the mockplatform command for local development.
package mockplatform

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/spounge-ai/polypay/pkg/apiclient"
)

const defaultEphemeralKeyTTL = time.Hour

type Options struct {
	Logger *slog.Logger
	// RateLimit is the sustained request rate allowed per credential. Zero
	// disables limiting.
	RateLimit       rate.Limit
	Burst           int
	EphemeralKeyTTL time.Duration
	Now             func() time.Time
}

type tokenState struct {
	token apiclient.Token
	used  bool
}

// Platform holds all fake platform state behind one mutex.
type Platform struct {
	logger *slog.Logger
	opts   Options
	now    func() time.Time
	router *mux.Router

	mu              sync.Mutex
	publishableKeys map[string]bool
	secretKeys      map[string]bool
	tokens          map[string]*tokenState
	sources         map[string]*apiclient.Source
	customers       map[string]*apiclient.Customer
	ephemeralKeys   map[string]*apiclient.EphemeralKey
	limiters        map[string]*rate.Limiter

	requests      atomic.Int64
	routeRequests sync.Map // route name -> *atomic.Int64
}

func New(opts Options) *Platform {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.EphemeralKeyTTL <= 0 {
		opts.EphemeralKeyTTL = defaultEphemeralKeyTTL
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	p := &Platform{
		logger:          opts.Logger,
		opts:            opts,
		now:             now,
		publishableKeys: make(map[string]bool),
		secretKeys:      make(map[string]bool),
		tokens:          make(map[string]*tokenState),
		sources:         make(map[string]*apiclient.Source),
		customers:       make(map[string]*apiclient.Customer),
		ephemeralKeys:   make(map[string]*apiclient.EphemeralKey),
		limiters:        make(map[string]*rate.Limiter),
	}
	p.router = p.newRouter()
	return p
}

// Handler serves the platform API under /v1.
func (p *Platform) Handler() http.Handler {
	return p.router
}

// Requests is the number of API requests received, rejected ones included.
func (p *Platform) Requests() int64 {
	return p.requests.Load()
}

// RouteRequests is the number of requests matched to the named route.
func (p *Platform) RouteRequests(name string) int64 {
	if v, ok := p.routeRequests.Load(name); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// Customer returns a snapshot of a stored customer.
func (p *Platform) Customer(id string) (apiclient.Customer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.customers[id]
	if !ok {
		return apiclient.Customer{}, false
	}
	return cloneCustomer(c), true
}

// Source returns a snapshot of a stored source.
func (p *Platform) Source(id string) (apiclient.Source, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sources[id]
	if !ok {
		return apiclient.Source{}, false
	}
	return *s, true
}

// IssueEphemeralKey mints a key for customerID valid for ttl. A non-positive
// ttl yields a key that is already expired.
// The returned key is a copy; changing it does not affect the platform.
func (p *Platform) IssueEphemeralKey(customerID string, ttl time.Duration) *apiclient.EphemeralKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := *p.issueKeyLocked(customerID, ttl)
	key.AssociatedObjects = append([]apiclient.AssociatedObject(nil), key.AssociatedObjects...)
	return &key
}

func (p *Platform) issueKeyLocked(customerID string, ttl time.Duration) *apiclient.EphemeralKey {
	now := p.now()
	key := &apiclient.EphemeralKey{
		ID:                newID("ephkey"),
		Object:            "ephemeral_key",
		Secret:            newID("ek_test"),
		Created:           now.Unix(),
		Expires:           now.Add(ttl).Unix(),
		AssociatedObjects: []apiclient.AssociatedObject{{Type: "customer", ID: customerID}},
	}
	p.ephemeralKeys[key.Secret] = key
	return key
}

func (p *Platform) limiter(credential string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[credential]
	if !ok {
		l = rate.NewLimiter(p.opts.RateLimit, p.opts.Burst)
		p.limiters[credential] = l
	}
	return l
}

func (p *Platform) countRoute(name string) {
	v, _ := p.routeRequests.LoadOrStore(name, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func cloneCustomer(c *apiclient.Customer) apiclient.Customer {
	out := *c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.Shipping != nil {
		shipping := *c.Shipping
		if c.Shipping.Address != nil {
			addr := *c.Shipping.Address
			shipping.Address = &addr
		}
		out.Shipping = &shipping
	}
	if c.Sources != nil {
		list := *c.Sources
		list.Data = append([]apiclient.PaymentSource(nil), c.Sources.Data...)
		out.Sources = &list
	}
	return out
}

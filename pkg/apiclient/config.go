package apiclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/spounge-ai/polypay/pkg/async"
	"github.com/spounge-ai/polypay/pkg/patterns/circuitbreaker"
)

const (
	// DefaultBaseURL is the production API origin.
	DefaultBaseURL = "https://api.stripe.com/v1"

	apiVersion       = "2015-10-12"
	defaultUserAgent = "polypay/1.0"
)

// APIVersion is the platform API version stamped on every request.
func APIVersion() string {
	return apiVersion
}

// RequestInfo describes one finished network attempt.
type RequestInfo struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Observer is notified after every network attempt.
type Observer interface {
	ObserveRequest(RequestInfo)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(RequestInfo)

func (f ObserverFunc) ObserveRequest(info RequestInfo) { f(info) }

// Config is the transport configuration shared by every request a client
// issues. It is a value: copies are independent and nothing mutates a Config
// after it has been handed to a client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	APIVersion string
	UserAgent  string
	// Timeout bounds each request on top of the caller's context. Zero leaves
	// the caller's context as the only bound.
	Timeout time.Duration
	// Executor delivers completions of the Async operations.
	Executor       async.Executor
	Logger         *slog.Logger
	Observer       Observer
	CircuitBreaker *circuitbreaker.Breaker
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		HTTPClient: http.DefaultClient,
		APIVersion: APIVersion(),
		UserAgent:  defaultUserAgent,
		Executor:   async.Inline,
		Logger:     slog.Default(),
	}
}

// withDefaults fills zero fields so that a hand-built Config works.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = d.HTTPClient
	}
	if c.APIVersion == "" {
		c.APIVersion = d.APIVersion
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Executor == nil {
		c.Executor = d.Executor
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

type Option func(*Config)

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithExecutor selects where Async completions run.
func WithExecutor(exec async.Executor) Option {
	return func(c *Config) { c.Executor = exec }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithAPIVersion pins the Stripe-Version header; empty keeps APIVersion().
func WithAPIVersion(v string) Option {
	return func(c *Config) { c.APIVersion = v }
}

// WithCircuitBreaker makes requests fail fast while cb is open.
func WithCircuitBreaker(cb *circuitbreaker.Breaker) Option {
	return func(c *Config) { c.CircuitBreaker = cb }
}

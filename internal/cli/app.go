package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spounge-ai/polypay/internal/config"
	"github.com/spounge-ai/polypay/internal/infra/secrets"
	"github.com/spounge-ai/polypay/internal/metrics"
	"github.com/spounge-ai/polypay/internal/server"
	"github.com/spounge-ai/polypay/pkg/apiclient"
	"github.com/spounge-ai/polypay/pkg/async"
	"github.com/spounge-ai/polypay/pkg/ephemeralkey"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	"github.com/spounge-ai/polypay/pkg/patterns/circuitbreaker"
	"github.com/spounge-ai/polypay/pkg/patterns/lifecycle"
)

const shutdownTimeout = 5 * time.Second

// app is everything a command needs, built once per invocation from the
// configuration.
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfg        *config.Config
	logger     *slog.Logger
	classifier *apierrors.ErrorClassifier
	client     *apiclient.Client
	keys       *ephemeralkey.Manager
	customer   *apiclient.CustomerContext
	resources  []lifecycle.ManagedResource
	started    bool
}

func newApp(stdout, stderr io.Writer) *app {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		logger:     logger,
		classifier: apierrors.NewErrorClassifier(logger),
	}
}

func (a *app) setup(ctx context.Context, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.baseURL != "" {
		cfg.API.BaseURL = opts.baseURL
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(a.stderr).With("component", "cli")
	a.classifier = apierrors.NewErrorClassifier(a.logger)

	key, err := a.publishableKey(ctx)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	if cfg.Metrics.Addr != "" {
		handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		a.resources = append(a.resources, server.New("metrics", cfg.Metrics.Addr, handler, a.logger))
	}

	clientOpts := []apiclient.Option{
		apiclient.WithBaseURL(cfg.API.BaseURL),
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithAPIVersion(cfg.API.Version),
		apiclient.WithExecutor(a.executor()),
		apiclient.WithLogger(a.logger),
		apiclient.WithObserver(collector),
	}
	if cb := cfg.CircuitBreaker; cb.Enabled {
		clientOpts = append(clientOpts, apiclient.WithCircuitBreaker(circuitbreaker.New(circuitbreaker.Settings{
			MaxFailures:   cb.MaxFailures,
			ResetTimeout:  cb.ResetTimeout,
			IsFailure:     apierrors.Retryable,
			OnStateChange: collector.BreakerStateChanged,
		})))
	}

	a.client, err = apiclient.New(key, clientOpts...)
	if err != nil {
		return err
	}

	if ek := cfg.EphemeralKeys; ek.Endpoint != "" {
		provider := ephemeralkey.NewHTTPProvider(ek.Endpoint, ek.CustomerID, ek.AuthToken)
		provider.Logger = a.logger
		a.keys = ephemeralkey.NewManager(provider,
			ephemeralkey.WithRefreshMargin(ek.RefreshMargin),
			ephemeralkey.WithRefreshTimeout(cfg.API.Timeout),
			ephemeralkey.WithAPIVersion(a.client.Config().APIVersion),
			ephemeralkey.WithLogger(a.logger),
		)
		a.customer = apiclient.NewCustomerContext(a.client.Customers(), a.keys)
	}

	if err := lifecycle.StartAll(ctx, a.resources...); err != nil {
		return err
	}
	a.started = true
	return nil
}

// publishableKey prefers the inline key and only touches AWS when a
// parameter has to be read.
func (a *app) publishableKey(ctx context.Context) (string, error) {
	api := a.cfg.API
	var store secrets.SecretGetter
	if api.PublishableKey == "" && api.PublishableKeyParameter != "" {
		awsCfg, err := secrets.LoadAWSConfig(ctx, a.cfg.AWS.Region)
		if err != nil {
			return "", err
		}
		store = secrets.NewParameterStore(awsCfg)
	}
	return secrets.ResolvePublishableKey(ctx, store, api.PublishableKey, api.PublishableKeyParameter)
}

func (a *app) executor() async.Executor {
	switch a.cfg.Callbacks.Executor {
	case "spawn":
		return async.Spawn
	case "serial":
		serial := async.NewSerial(a.cfg.Callbacks.QueueSize, a.logger)
		a.resources = append(a.resources, serial)
		return serial
	default:
		return async.Inline
	}
}

func (a *app) customers(op string) (*apiclient.CustomerContext, error) {
	if a.customer == nil {
		return nil, apierrors.InvalidInput(op, "ephemeral_keys.endpoint is not configured")
	}
	return a.customer, nil
}

func (a *app) close() error {
	if a.keys != nil {
		a.keys.Close()
	}
	if !a.started {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return lifecycle.StopAll(ctx, a.resources...)
}

// exitCode reports err on stderr and maps it to a process status.
func (a *app) exitCode(ctx context.Context, op string, err error) int {
	if err == nil {
		return 0
	}
	classified := a.classifier.Classify(err, op)
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		err = a.classifier.LogAndSanitize(ctx, classified)
		if apiErr.Platform != nil && apiErr.Platform.Message != "" {
			err = fmt.Errorf("%w: %s", err, apiErr.Platform.Message)
		}
	}
	fmt.Fprintln(a.stderr, "Error:", err)
	return classified.ExitCode()
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/spounge-ai/polypay/internal/config"
	"github.com/spounge-ai/polypay/internal/mockplatform"
	"github.com/spounge-ai/polypay/internal/server"
	"github.com/spounge-ai/polypay/pkg/patterns/lifecycle"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(os.Getenv("POLYPAY_CONFIG_PATH"))
	if err != nil {
		// The logger is not configured yet.
		config.LogConfig{Level: "info", Format: "text"}.NewLogger(os.Stderr).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(os.Stderr).With("component", "mockplatform")

	platform := mockplatform.New(mockplatform.Options{
		Logger:          logger,
		RateLimit:       rate.Limit(cfg.Mock.RateLimit),
		Burst:           cfg.Mock.Burst,
		EphemeralKeyTTL: cfg.Mock.EphemeralKeyTTL,
	})
	if cfg.Mock.SeedFile != "" {
		if err := platform.LoadSeedFile(cfg.Mock.SeedFile); err != nil {
			logger.Error("failed to load seed", "path", cfg.Mock.SeedFile, "error", err)
			os.Exit(1)
		}
		logger.Info("seed loaded", "path", cfg.Mock.SeedFile)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "polypay",
		Name:      "mock_requests_total",
		Help:      "Requests served by the mock platform",
	}, func() float64 { return float64(platform.Requests()) }))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", platform.Handler())

	resources := []lifecycle.ManagedResource{server.New("mockplatform", cfg.Mock.Addr, mux, logger)}
	if err := lifecycle.StartAll(ctx, resources...); err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-signalChan:
		logger.Info("received shutdown signal", "signal", s.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := lifecycle.StopAll(shutdownCtx, resources...); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/duka/internal/config"
	"github.com/jkaninda/duka/internal/gateway"
	"github.com/jkaninda/duka/internal/gateway/httpapi"
	"github.com/jkaninda/duka/internal/ratelimit"
	"github.com/jkaninda/duka/internal/scheduler"
	goutils "github.com/jkaninda/go-utils"
)

var (
	configPath string
	servePort  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API gateway",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `duka --config path` and `duka serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
}

// loadConfig resolves the config path from DUKA_CONFIG or the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(goutils.Env("DUKA_CONFIG", configPath))
}

// runServe starts the HTTP gateway and the housekeeping scheduler.
func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger(true, slog.LevelInfo)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		if cfg.Gateways.HTTP == nil {
			cfg.Gateways.HTTP = &config.HTTPGatewayConfig{Enabled: true}
		}
		cfg.Gateways.HTTP.ListenAddr = servePort
	}
	if cfg.Gateways.HTTP == nil || !cfg.Gateways.HTTP.Enabled {
		return fmt.Errorf("no gateways enabled in config")
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting duka",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("provider", cfg.NLU.Provider),
	)

	sc, err := initShared(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	httpCfg := cfg.Gateways.HTTP
	var limiter *ratelimit.Limiter
	if httpCfg.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: httpCfg.RateLimit.RequestsPerMinute,
			BurstSize:         httpCfg.RateLimit.BurstSize,
		})
	}

	// Housekeeping.
	var registry *prometheus.Registry
	if sc.Obs != nil && sc.Obs.Metrics != nil {
		registry = sc.Obs.Metrics.Registry
	}
	sched := scheduler.New(scheduler.NewMetrics(registry), logger)
	jobs := scheduler.HousekeepingJobs(cfg.Housekeeping, scheduler.Targets{
		Limiter: limiter,
		Store:   sc.RawStore,
		Audit:   sc.Audit,
	}, logger)
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return err
		}
	}
	if len(jobs) > 0 {
		cancelScheduler := sched.Start(ctx)
		defer cancelScheduler()
		logger.Debug("housekeeping scheduler started", slog.Int("jobs", len(jobs)))
	}

	gateways := []gateway.Gateway{buildHTTPGateway(httpCfg, sc, limiter)}
	logger.Info("gateways configured", slog.Int("count", len(gateways)))

	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	// Wait for signal or first gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}
	return nil
}

func buildHTTPGateway(httpCfg *config.HTTPGatewayConfig, sc *SharedComponents, limiter *ratelimit.Limiter) *httpapi.Gateway {
	gwCfg := httpapi.Config{
		ListenAddr:     httpCfg.ListenAddr,
		EnableDocs:     httpCfg.EnableDocs,
		APIKeys:        httpCfg.APIKeys,
		MaxRequestSize: httpCfg.MaxRequestSizeBytes,
	}
	if obs := sc.Obs; obs != nil {
		gwCfg.HealthChecker = obs.Health
		if obs.Metrics != nil {
			gwCfg.Metrics = obs.Metrics
			gwCfg.MetricsRegistry = obs.Metrics.Registry
			if m := sc.Config.Observability.Metrics; m != nil {
				gwCfg.MetricsPath = m.Path
			}
		}
		var tracer trace.Tracer
		if obs.Tracer != nil {
			tracer = obs.Tracer.Tracer()
		}
		gwCfg.Tracer = tracer
	}
	return httpapi.NewGateway(gwCfg, sc.Pipeline, sc.Catalog, limiter, sc.Logger)
}

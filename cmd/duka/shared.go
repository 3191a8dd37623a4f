package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jkaninda/duka/internal/audit"
	"github.com/jkaninda/duka/internal/config"
	"github.com/jkaninda/duka/internal/llm"
	"github.com/jkaninda/duka/internal/llm/anthropic"
	"github.com/jkaninda/duka/internal/llm/ollama"
	"github.com/jkaninda/duka/internal/llm/openai"
	"github.com/jkaninda/duka/internal/nlu"
	"github.com/jkaninda/duka/internal/observability"
	"github.com/jkaninda/duka/internal/pipeline"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/storage"
	badgerstore "github.com/jkaninda/duka/internal/storage/badger"
	"github.com/jkaninda/duka/internal/storage/memory"
	pgstore "github.com/jkaninda/duka/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/duka/internal/storage/sqlite"
)

// SharedComponents holds the subsystems every command needs. Built once by
// initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger

	Obs      *observability.Observability
	RawStore storage.Store // Backend without instrumentation, for housekeeping.
	Store    storage.Store
	Catalog  *storage.CatalogCache
	Provider llm.Provider // nil when the provider is mock.
	Audit    audit.Logger
	Pipeline *pipeline.Pipeline

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// newLogger returns the process logger. JSON for servers, text otherwise.
func newLogger(json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// initShared performs the initialization common to all commands.
// Callers must call sc.Cleanup() when done.
func initShared(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
		Audit:  audit.Nop{},
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})

	// Storage.
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.RawStore = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	ds, err := storage.LoadDataset(cfg.Storage.SeedDir)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	if err := store.Seed(ctx, ds); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("seeding %s store: %w", store.Driver(), err)
	}
	logger.Debug("store ready",
		slog.String("driver", store.Driver()),
		slog.Int("products", len(ds.Products)),
		slog.Int("orders", len(ds.Orders)),
	)

	sc.Store = store
	if obs != nil && obs.Metrics != nil {
		sc.Store = observability.NewInstrumentedStore(store, obs.Metrics, obs.TracerOrNil(), obs.Anomaly)
	}
	sc.Catalog = storage.NewCatalogCache(sc.Store)
	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("store", store.Ping)
	}

	// Language model.
	if cfg.NLU.UsesModel() {
		provider, err := newLLMProvider(cfg, logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("initializing LLM provider: %w", err)
		}
		if obs != nil && obs.Metrics != nil {
			provider = observability.NewInstrumentedProvider(provider, obs.Metrics, obs.TracerOrNil(), obs.Anomaly)
		}
		sc.Provider = provider
		logger.Debug("llm provider initialized", slog.String("provider", provider.Name()))
	}

	// Audit log.
	if cfg.Audit.Enabled {
		fl, err := audit.NewFileLogger(cfg.AuditLogPath(), logger)
		if err != nil {
			sc.Cleanup()
			return nil, err
		}
		sc.Audit = fl
		sc.addCleanup(func() {
			if err := fl.Close(); err != nil {
				logger.Error("closing audit log", slog.String("error", err.Error()))
			}
		})
		logger.Debug("audit log enabled", slog.String("path", cfg.AuditLogPath()))
	}

	opts, err := pipelineOptions(cfg, sc)
	if err != nil {
		sc.Cleanup()
		return nil, err
	}
	p, err := pipeline.New(ctx, sc.Store, logger, opts...)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing pipeline: %w", err)
	}
	sc.Pipeline = p
	logger.Debug("pipeline initialized",
		slog.String("classifier", cfg.NLU.Classifier),
		slog.String("writer", cfg.NLU.Writer),
		slog.Any("tools", p.Registry().List()),
		slog.String("window", p.Window().String()),
	)
	return sc, nil
}

// pipelineOptions translates the config into pipeline options.
func pipelineOptions(cfg *config.Config, sc *SharedComponents) ([]pipeline.Option, error) {
	opts := []pipeline.Option{
		pipeline.WithCatalog(sc.Catalog),
		pipeline.WithAudit(sc.Audit),
		pipeline.WithObservability(sc.Obs),
		pipeline.WithTimeout(cfg.NLU.Timeout()),
		pipeline.WithGuard(policy.NewGuard(policy.Config{
			Window:       cfg.Policy.Window(),
			Alternatives: cfg.Policy.Alternatives,
		})),
	}

	fixed, ok, err := cfg.Clock.Fixed()
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, pipeline.WithClock(func() time.Time { return fixed }))
		sc.Logger.Info("using fixed reference time", slog.String("current_time", fixed.Format(time.RFC3339)))
	}

	if cfg.NLU.Classifier == "model" {
		opts = append(opts, pipeline.WithClassifier(nlu.NewModelClassifier(sc.Provider, 0, sc.Logger)))
	}
	if cfg.NLU.Writer == "model" {
		opts = append(opts, pipeline.WithWriter(nlu.NewModelWriter(sc.Provider, cfg.NLU.MaxTokens, sc.Logger)))
	}
	return opts, nil
}

// initStore creates the storage backend selected by the config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case storage.DriverMemory, "":
		return memory.New(logger), nil
	case storage.DriverSQLite:
		journalMode := "wal"
		if cfg.Storage.SQLite != nil && cfg.Storage.SQLite.JournalMode != "" {
			journalMode = cfg.Storage.SQLite.JournalMode
		}
		return sqlitestore.Open(sqlitestore.Config{
			Path:        cfg.SQLitePath(),
			JournalMode: journalMode,
		}, logger)
	case storage.DriverPostgres:
		pg := cfg.Storage.Postgres
		return pgstore.Open(pgstore.Config{
			DSN:             pg.DSN,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
		}, logger)
	case storage.DriverBadger:
		dir := cfg.BadgerDir()
		if dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("creating badger directory %s: %w", dir, err)
			}
		}
		return badgerstore.Open(badgerstore.Config{Dir: dir}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// newLLMProvider creates the configured provider with retries, wrapped in a
// fallback chain when fallbacks are configured.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary, err := buildProvider(cfg.NLU.Provider, cfg, logger)
	if err != nil {
		return nil, err
	}

	if len(cfg.Providers.Fallback) > 0 {
		providers := []llm.Provider{primary}
		for _, name := range cfg.Providers.Fallback {
			fb, err := buildProvider(name, cfg, logger)
			if err != nil {
				logger.Warn("skipping fallback provider",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			providers = append(providers, fb)
		}
		if len(providers) > 1 {
			return llm.NewFallbackProvider(providers, logger), nil
		}
	}
	return primary, nil
}

// buildProvider creates a single provider by name, with retries.
func buildProvider(name string, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	var p llm.Provider
	switch name {
	case "openai":
		var opts []openai.Option
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		p = openai.NewClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Model, logger, opts...)
	case "anthropic":
		var opts []anthropic.Option
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		p = anthropic.NewClient(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model, logger, opts...)
	case "ollama":
		var opts []ollama.Option
		if cfg.Providers.Ollama.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(cfg.Providers.Ollama.BaseURL))
		}
		p = ollama.NewClient(cfg.Providers.Ollama.Model, logger, opts...)
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
	return llm.NewRetryProvider(p, llm.RetryConfig{MaxTries: cfg.NLU.RetryTries}, logger), nil
}

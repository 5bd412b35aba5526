package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tokenwise-ai/tokenwise/pkg/budget"
	"github.com/tokenwise-ai/tokenwise/pkg/cache"
	"github.com/tokenwise-ai/tokenwise/pkg/config"
	"github.com/tokenwise-ai/tokenwise/pkg/logging"
	"github.com/tokenwise-ai/tokenwise/pkg/orchestrator"
	"github.com/tokenwise-ai/tokenwise/pkg/ratelimit"
	"github.com/tokenwise-ai/tokenwise/pkg/registry"
	"github.com/tokenwise-ai/tokenwise/pkg/router"
	"github.com/tokenwise-ai/tokenwise/pkg/tracker"
	"github.com/tokenwise-ai/tokenwise/pkg/usage"
)

// app is the wired process: config, logger and the orchestrator with its
// collaborators.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	manager  *orchestrator.Manager
	tracker  *tracker.SQLiteTracker
	enforcer *budget.Enforcer
	metrics  *prometheus.Registry
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	if flags.configPath == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(flags.configPath)
}

// newApp loads configuration and builds every component it enables.
func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, logger)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, regOpts ...registry.Option) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}

	reg, err := registry.New(ctx, cfg.Providers, append([]registry.Option{registry.WithLogger(logger)}, regOpts...)...)
	if err != nil {
		return nil, err
	}
	a.registry = reg

	opts := orchestrator.Options{
		Registry:            reg,
		Selector:            router.New(reg, cfg.Selector),
		Limiter:             ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window),
		Accountant:          usage.New(usage.WithRegisterer(a.metrics)),
		Logger:              logger,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		MaxRetries:          cfg.Orchestrator.MaxRetries,
		CallTimeout:         cfg.Orchestrator.CallTimeout,
		RetryBackoff:        cfg.Orchestrator.RetryBackoff,
	}

	if cfg.Cache.Enabled {
		opts.Cache = cache.NewStore(cache.Options{
			MaxBytes:           cfg.Cache.MaxBytes,
			DefaultTTL:         cfg.Cache.DefaultTTL,
			Categories:         cfg.Cache.Categories,
			AverageCostPerCall: cfg.Cache.AverageCostPerCall,
			Logger:             logger.Named("cache"),
		})
	}

	if cfg.Ledger.Enabled || cfg.Budget.Enabled {
		tr, err := tracker.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.tracker = tr
		opts.Ledger = tr
	}
	if cfg.Budget.Enabled {
		a.enforcer = budget.New(cfg.Budget.Policies, a.tracker)
		opts.Budget = a.enforcer
	}

	m, err := orchestrator.New(opts)
	if err != nil {
		a.close()
		return nil, err
	}
	a.manager = m

	logger.Debug("tokenwise ready",
		zap.String("primary", cfg.Selector.Primary),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("ledger", cfg.Ledger.Enabled),
		zap.Bool("budget", cfg.Budget.Enabled))
	return a, nil
}

// requireTracker returns the ledger or an error when it is disabled.
func (a *app) requireTracker() (*tracker.SQLiteTracker, error) {
	if a.tracker == nil {
		return nil, errors.New("usage ledger is disabled (set ledger.enabled or budget.enabled)")
	}
	return a.tracker, nil
}

func (a *app) close() {
	if a.tracker != nil {
		if err := a.tracker.Close(); err != nil {
			a.logger.Warn("close ledger", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// withApp runs fn with a wired app and a context cancelled on interrupt.
func withApp(flags *rootFlags, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, flags)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer a.close()
	return fn(ctx, a)
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/atmo-climate/atmo/internal/chain"
	"github.com/atmo-climate/atmo/internal/config"
	"github.com/atmo-climate/atmo/internal/db"
	"github.com/atmo-climate/atmo/internal/gateway"
	"github.com/atmo-climate/atmo/internal/history"
	"github.com/atmo-climate/atmo/internal/llm"
	"github.com/atmo-climate/atmo/internal/observability"
	"github.com/atmo-climate/atmo/internal/prompts"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `atmo init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// openDatabase opens the history database under the configured data dir.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	database, err := db.Open(filepath.Join(cfg.DataDir, db.FileName))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// createProviderFromConfig builds the model provider with the optional
// rate limiter and circuit breaker around it.
func createProviderFromConfig(cfg *config.Config, logger *zap.Logger) (llm.Provider, error) {
	provider, err := llm.NewProvider(cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if cfg.Limits.RequestsPerMinute > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.Limits.RequestsPerMinute)
	}
	if cfg.Breaker.Enabled {
		provider = llm.NewBreakerProvider(provider, cfg.BreakerSettings(), logger)
	}
	return provider, nil
}

// app bundles everything a command needs to run turns.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *db.DB
	store   *history.Store
	gateway *gateway.Gateway
	region  *prompts.Region
}

// newApp wires config, logging, storage, the model chain and the gateway.
// metrics may be nil.
func newApp(metrics *observability.Collector) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	region, err := cfg.ResolveRegion()
	if err != nil {
		return nil, fmt.Errorf("loading region: %w", err)
	}

	provider, err := createProviderFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(provider, cfg.ClientOptions())

	chainOpts := []chain.Option{chain.WithLogger(logger.Named("chain"))}
	gwOpts := []gateway.Option{
		gateway.WithHistoryLimit(cfg.Chain.HistoryLimit),
		gateway.WithLogger(logger.Named("gateway")),
	}
	if metrics != nil {
		chainOpts = append(chainOpts, chain.WithMetrics(metrics))
		gwOpts = append(gwOpts, gateway.WithMetrics(metrics))
	}
	orchestrator := chain.New(client, prompts.New(region), chainOpts...)

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	store := history.NewStore(database)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      database,
		store:   store,
		gateway: gateway.New(store, orchestrator, gwOpts...),
		region:  region,
	}, nil
}

// openStore opens only the history store, for commands that never call
// the model.
func openStore() (*history.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return history.NewStore(database), func() { database.Close() }, nil
}

func (a *app) Close() {
	a.db.Close()
	a.logger.Sync()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

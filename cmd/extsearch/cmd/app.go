package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Aman-CERP/extsearch/internal/backend"
	"github.com/Aman-CERP/extsearch/internal/config"
	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/logging"
	"github.com/Aman-CERP/extsearch/internal/search"
	"github.com/Aman-CERP/extsearch/internal/settings"
	"github.com/Aman-CERP/extsearch/internal/store"
	"github.com/Aman-CERP/extsearch/internal/telemetry"
	"github.com/Aman-CERP/extsearch/internal/workspace"
)

// app holds the components one CLI invocation works with. Open it with
// openApp and release it with Close.
type app struct {
	cfg      *config.Config
	store    *store.SettingStore
	settings *settings.SearchSettings
	registry *indexed.Registry
	metrics  *telemetry.Metrics
	builder  *search.QueryBuilder

	engine       backend.Engine
	queryMetrics *telemetry.QueryMetrics
}

// loadConfig resolves the configuration from --config or the standard
// locations, then applies --db.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cwd, wdErr := os.Getwd()
		if wdErr != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", wdErr)
		}
		cfg, err = config.Load(cwd)
	}
	if err != nil {
		return nil, exterrors.ConfigError("failed to load configuration", err)
	}
	if dbPath != "" {
		cfg.Storage.DatabasePath = dbPath
	}
	return cfg, nil
}

// loadRegistry returns the models of cfg: the file named by
// search.models_file, or the built-in workspace models.
func loadRegistry(cfg *config.Config) (*indexed.Registry, error) {
	if cfg.Search.ModelsFile != "" {
		return indexed.LoadYAMLFile(cfg.Search.ModelsFile)
	}
	return workspace.NewRegistry()
}

// openApp loads configuration and initialises every settings layer.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !debugMode {
		slog.SetDefault(logging.NewStderrLogger(cfg.Server.LogLevel))
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenSettingStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	metrics := telemetry.NewMetrics()
	ss := settings.New(
		settings.WithFieldSource(registry),
		settings.WithDBSource(st),
		settings.WithDjangoSettings(cfg.Settings),
	)
	ss.OnChange(metrics.SettingsRefreshed)

	builder := search.NewQueryBuilder(ss, registry, search.Options{
		IndexName:    cfg.Search.IndexName,
		CacheEnabled: cfg.Search.CacheEnabled,
		CacheSize:    cfg.Search.CacheSize,
		Observer:     metrics,
	})

	if err := ss.Initialise(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	ss.WatchStore(st)

	slog.Debug("app_opened",
		slog.String("database", cfg.Storage.DatabasePath),
		slog.Int("models", len(registry.Models())))

	return &app{
		cfg:      cfg,
		store:    st,
		settings: ss,
		registry: registry,
		metrics:  metrics,
		builder:  builder,
	}, nil
}

// Engine opens the configured search engine on first use.
func (a *app) Engine() (backend.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}

	var (
		eng backend.Engine
		err error
	)
	switch strings.ToLower(a.cfg.Engine.Backend) {
	case "opensearch":
		eng, err = backend.NewOpenSearchClient(backend.OpenSearchConfig{
			Addresses:  a.cfg.Engine.Addresses,
			Username:   a.cfg.Engine.Username,
			Password:   a.cfg.Engine.Password,
			Index:      a.cfg.Search.IndexName,
			Timeout:    a.cfg.Engine.TimeoutDuration(),
			MaxRetries: a.cfg.Engine.MaxRetries,
			TieBreaker: a.cfg.Search.TieBreaker,
		}, a.registry.Models(), a.settings)
	default:
		eng, err = backend.NewBleveIndex(a.cfg.Engine.BlevePath, a.registry.Models(), a.settings, a.cfg.Search.TieBreaker)
	}
	if err != nil {
		return nil, err
	}
	a.engine = eng
	return eng, nil
}

// Service returns a search service over the configured engine that
// records every request in the telemetry tables.
func (a *app) Service() (*search.Service, error) {
	eng, err := a.Engine()
	if err != nil {
		return nil, err
	}

	opts := []search.ServiceOption{
		search.WithFacets(workspace.Facets()),
		search.WithMetrics(a.metrics),
		search.WithDefaultLimit(a.cfg.Search.DefaultLimit),
	}
	if qm, err := a.openQueryMetrics(); err != nil {
		slog.Warn("telemetry_unavailable", slog.String("error", err.Error()))
	} else {
		opts = append(opts, search.WithQueryMetrics(qm))
	}
	return search.NewService(a.builder, eng, opts...)
}

func (a *app) openQueryMetrics() (*telemetry.QueryMetrics, error) {
	if a.queryMetrics != nil {
		return a.queryMetrics, nil
	}
	ms, err := a.metricsStore()
	if err != nil {
		return nil, err
	}
	cfg := telemetry.DefaultQueryMetricsConfig()
	// One invocation runs a handful of searches; Close flushes them.
	cfg.FlushInterval = 0
	a.queryMetrics = telemetry.NewQueryMetricsWithConfig(ms, cfg)
	return a.queryMetrics, nil
}

// metricsStore opens the telemetry tables in the settings database.
func (a *app) metricsStore() (*telemetry.SQLiteMetricsStore, error) {
	if err := telemetry.InitTelemetrySchema(a.store.DB()); err != nil {
		return nil, err
	}
	return telemetry.NewSQLiteMetricsStore(a.store.DB())
}

// Close flushes telemetry and releases the engine and database.
func (a *app) Close() error {
	var firstErr error
	if a.queryMetrics != nil {
		if err := a.queryMetrics.Close(); err != nil {
			firstErr = err
		}
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

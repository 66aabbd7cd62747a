package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	"github.com/guoyu-zhang/say-like-a-native/internal/search"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
	"github.com/guoyu-zhang/say-like-a-native/internal/telemetry"
)

// app holds the services shared by serve, search, mcp and index.
type app struct {
	cfg     *config.Config
	store   store.Store
	engine  *search.Engine
	metrics *telemetry.QueryMetrics
}

// loadConfig loads the effective configuration for the working directory.
func loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(dir)
}

// storeConfig maps the store section of cfg to the backend factory's config.
func storeConfig(cfg *config.Config) store.Config {
	return store.Config{
		Backend: cfg.Store.Backend,
		DataDir: cfg.Store.DataDir,
		Index:   cfg.Store.Index,
		OpenSearch: store.OpenSearchConfig{
			URL:         cfg.Store.OpenSearch.URL,
			Username:    cfg.Store.OpenSearch.Username,
			Password:    cfg.Store.OpenSearch.Password,
			VerifyCerts: cfg.Store.OpenSearch.VerifyCerts,
			Index:       cfg.Store.Index,
		},
	}
}

// openApp opens the store and builds the engine. Metrics are attached only
// when withMetrics is set and telemetry is enabled; a metrics database that
// cannot be opened degrades to in-memory counters.
func openApp(ctx context.Context, cfg *config.Config, withMetrics bool) (*app, error) {
	s, err := store.Open(ctx, storeConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	a := &app{cfg: cfg, store: s}

	var opts []search.EngineOption
	if withMetrics && cfg.Telemetry.Enabled {
		a.metrics = openMetrics(cfg.Telemetry)
		opts = append(opts, search.WithMetrics(a.metrics))
	}

	a.engine, err = search.NewEngine(s, search.EngineConfigFrom(cfg.Search, cfg.Store.Index), opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func openMetrics(cfg config.TelemetryConfig) *telemetry.QueryMetrics {
	tcfg := telemetry.DefaultConfig()
	tcfg.FlushInterval = cfg.FlushInterval

	if cfg.DBPath == "" {
		return telemetry.NewQueryMetrics(nil, tcfg)
	}
	ms, err := telemetry.OpenSQLiteMetricsStore(cfg.DBPath)
	if err != nil {
		slog.Warn("telemetry store unavailable, keeping metrics in memory",
			slog.String("path", cfg.DBPath),
			slog.String("error", err.Error()))
		return telemetry.NewQueryMetrics(nil, tcfg)
	}
	return telemetry.NewQueryMetrics(ms, tcfg)
}

// Close flushes metrics and closes the store.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	return errors.Join(errs...)
}

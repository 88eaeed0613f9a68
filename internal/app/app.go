// Package app wires configuration, logging, metrics and the catalog into the
// components the commands run.
package app

import (
	"context"

	"github.com/tcgvision/cardmatch/internal/api"
	"github.com/tcgvision/cardmatch/internal/builder"
	"github.com/tcgvision/cardmatch/internal/buildinfo"
	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/matcher"
	"github.com/tcgvision/cardmatch/internal/observability"
	"github.com/tcgvision/cardmatch/internal/tcgdex"
)

// App holds the long-lived components of one process.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Log      logger.Logger
	Computer *imagehash.Computer
	Metrics  *observability.Metrics

	catalog *catalog.Catalog
}

// New builds the hash computer and metrics. The catalog is opened on demand
// by OpenCatalog so commands that never touch it do not take its lock.
func New(settings *conf.Settings, build *buildinfo.Context, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Global().Module("main")
	}
	computer, err := imagehash.NewComputer(imagehash.ConfigFromSettings(settings.Hash))
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_metrics").
			Build()
	}
	return &App{
		Settings: settings,
		Build:    build,
		Log:      log,
		Computer: computer,
		Metrics:  m,
	}, nil
}

// OpenCatalog opens the configured catalog backend and loads it.
func (a *App) OpenCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}

	shape := a.Computer.Shape()
	backend, err := catalog.NewBackend(a.Settings.Catalog, shape, logger.Global().Module("catalog"))
	if err != nil {
		return nil, err
	}
	c, err := catalog.Open(ctx, backend,
		catalog.WithShape(shape),
		catalog.WithMetrics(a.Metrics.Catalog))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	a.catalog = c
	a.Log.Info("catalog ready",
		logger.String("backend", c.Backend()),
		logger.Int("cards", c.Len()),
		logger.String("shape", shape.String()))
	return c, nil
}

// Matcher returns a matcher over the open catalog using the configured
// resource policy.
func (a *App) Matcher(ctx context.Context) (*matcher.Matcher, error) {
	c, err := a.OpenCatalog(ctx)
	if err != nil {
		return nil, err
	}
	policy, err := matcher.NewResourcePolicy(a.Settings.Resolver)
	if err != nil {
		return nil, err
	}
	return matcher.New(a.Computer, c,
		matcher.WithPolicy(policy),
		matcher.WithMetrics(a.Metrics.Matcher)), nil
}

// Service returns the API service over the open catalog.
func (a *App) Service(ctx context.Context) (*api.Service, error) {
	m, err := a.Matcher(ctx)
	if err != nil {
		return nil, err
	}
	defaults, err := api.DefaultsFromSettings(a.Settings.API)
	if err != nil {
		return nil, err
	}
	return api.NewService(a.Computer, a.catalog, m, api.WithDefaults(defaults)), nil
}

// TCGdex returns a card database client for the configured endpoint.
func (a *App) TCGdex() (*tcgdex.Client, error) {
	cfg := tcgdex.ConfigFromSettings(a.Settings.TCGdex)
	if cfg.UserAgent == "" {
		cfg.UserAgent = a.Build.UserAgent()
	}
	return tcgdex.NewClient(cfg, tcgdex.WithMetrics(a.Metrics.Upstream))
}

// BuilderOptions maps the builder settings to run options. Zero fields keep
// the builder defaults.
func (a *App) BuilderOptions() builder.Options {
	b := a.Settings.Builder
	return builder.Options{
		BatchSize:    b.BatchSize,
		StartFrom:    b.StartFrom,
		Limit:        b.Limit,
		FetchTimeout: b.FetchTimeout,
		Throttle:     builder.NewRateThrottle(b.Delay),
		ExportPath:   a.Settings.Catalog.ExportPath,
		Metrics:      a.Metrics.Builder,
	}
}

// Close releases the catalog.
func (a *App) Close() error {
	if a.catalog == nil {
		return nil
	}
	err := a.catalog.Close()
	a.catalog = nil
	return err
}

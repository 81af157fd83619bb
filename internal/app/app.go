// Package app wires the subsystems together: configuration, the journal
// database, the provider set, the collector, and the read API server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lplpqq/forecast/internal/catalog"
	"github.com/lplpqq/forecast/internal/collector"
	"github.com/lplpqq/forecast/internal/constants"
	"github.com/lplpqq/forecast/internal/controllers/restserver"
	"github.com/lplpqq/forecast/internal/database"
	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/log"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/providers/meteostat"
	"github.com/lplpqq/forecast/internal/providers/openmeteo"
	"github.com/lplpqq/forecast/internal/providers/openweathermap"
	"github.com/lplpqq/forecast/internal/providers/tomorrowio"
	"github.com/lplpqq/forecast/internal/providers/visualcrossing"
	"github.com/lplpqq/forecast/internal/providers/weatherbit"
	"github.com/lplpqq/forecast/internal/providers/worldweatheronline"
	"github.com/lplpqq/forecast/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// RunCollection performs the gathering run: catalog populate, provider
// fan-out, journal append. When initial is false the gather is skipped
// entirely; collection only ever happens on explicit request.
func (a *App) RunCollection(ctx context.Context, initial bool) error {
	if !initial {
		log.Info("skipping gather; pass --initial to collect")
		return nil
	}

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}
	start, end, err := cfg.Collector.Window()
	if err != nil {
		return err
	}

	cacheDir := cfg.Collector.CacheDir
	if cacheDir == "" {
		cacheDir = constants.DefaultCacheDir
	}

	db, err := a.connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext(ctx)
	defer cancel()

	transport := httpclient.NewPooledTransport()

	// The catalog archive URL is absolute, so the loader client's base
	// only matters for sharing the pooled transport.
	catalogClient, err := httpclient.New("https://simplemaps.com", httpclient.WithTransport(transport))
	if err != nil {
		return err
	}
	loader := catalog.NewLoader(db, catalogClient, cacheDir, cfg.Collector.MinPopulation)
	if err := loader.Populate(ctx); err != nil {
		return fmt.Errorf("populating the city catalog: %w", err)
	}

	provs := buildProviders(cfg.DataSources, transport, cacheDir)
	if len(provs) == 0 {
		return &config.ConfigError{Section: "data_sources", Reason: "no data sources are enabled"}
	}

	coll := collector.New(db, provs, start, end, collector.Options{})
	defer coll.Teardown()
	if err := coll.Setup(ctx); err != nil {
		return err
	}
	return coll.Run(ctx)
}

// RunAPI starts the read API server and blocks until shutdown.
func (a *App) RunAPI(ctx context.Context) error {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.API == nil {
		return &config.ConfigError{Section: "api", Reason: "api section is required to serve"}
	}

	db, err := a.connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext(ctx)
	defer cancel()

	var wg sync.WaitGroup
	ctrl, err := restserver.NewController(ctx, &wg, db, *cfg.API, a.logger)
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	log.Infof("read API listening on %s", ctrl.Server.Addr)
	<-ctx.Done()
	wg.Wait()
	log.Info("shutdown complete")
	return ctx.Err()
}

// connect opens the journal database and migrates the schema.
func (a *App) connect(cfg *config.ConfigData) (*database.Client, error) {
	db := database.NewClient(cfg.Database.ConnectionString, collector.ConcurrentSessionsAllowed, a.logger)
	if err := db.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to the journal database: %w", err)
	}
	if err := db.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// signalContext cancels the returned context on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// providerFactory builds one data source from its settings.
type providerFactory struct {
	name        string
	requiresKey bool
	build       func(providers.Settings) (providers.Provider, error)
}

var providerFactories = []providerFactory{
	{"open_meteo", false, func(s providers.Settings) (providers.Provider, error) { return openmeteo.NewProvider(s) }},
	{"meteostat", false, func(s providers.Settings) (providers.Provider, error) { return meteostat.NewProvider(s) }},
	{"weatherbit", true, func(s providers.Settings) (providers.Provider, error) { return weatherbit.NewProvider(s) }},
	{"world_weather_online", true, func(s providers.Settings) (providers.Provider, error) { return worldweatheronline.NewProvider(s) }},
	{"visual_crossing", true, func(s providers.Settings) (providers.Provider, error) { return visualcrossing.NewProvider(s) }},
	{"open_weather_map", true, func(s providers.Settings) (providers.Provider, error) { return openweathermap.NewProvider(s) }},
	{"tomorrow_io", true, func(s providers.Settings) (providers.Provider, error) { return tomorrowio.NewProvider(s) }},
}

// buildProviders constructs every enabled data source. A keyed source
// without an api_key in config is skipped with a warning rather than
// failing the run.
func buildProviders(sources map[string]config.DataSourceData, transport http.RoundTripper, cacheDir string) []providers.Provider {
	var provs []providers.Provider
	for _, factory := range providerFactories {
		source, configured := sources[factory.name]
		if configured && !source.SourceEnabled() {
			log.Infof("data source %s is disabled in config, skipping", factory.name)
			continue
		}
		if factory.requiresKey && source.APIKey == "" {
			log.Warnf("data source %s has no api_key configured, skipping", factory.name)
			continue
		}

		p, err := factory.build(providers.Settings{
			APIKey:    source.APIKey,
			Transport: transport,
			CacheDir:  cacheDir,
		})
		if err != nil {
			log.Errorf("error constructing data source %s, skipping: %v", factory.name, err)
			continue
		}
		provs = append(provs, p)
	}
	return provs
}

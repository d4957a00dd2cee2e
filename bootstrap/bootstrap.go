// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML or TOML file; a handful of DOCFORGE_*
// environment variables override it.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/artpar/docforge/adapters/clock"
	"github.com/artpar/docforge/adapters/fs"
	apihttp "github.com/artpar/docforge/adapters/http"
	"github.com/artpar/docforge/adapters/idgen"
	"github.com/artpar/docforge/adapters/memory"
	"github.com/artpar/docforge/adapters/metrics"
	"github.com/artpar/docforge/adapters/sqlite"
	"github.com/artpar/docforge/app"
	"github.com/artpar/docforge/config"
	"github.com/artpar/docforge/core/analysis"
	"github.com/artpar/docforge/core/events"
	"github.com/artpar/docforge/core/injector"
	"github.com/artpar/docforge/core/template"
	"github.com/artpar/docforge/domain/frontmatter"
	"github.com/artpar/docforge/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	Engine     *app.Engine
	Injector   *injector.Injector
	Bus        *events.Bus
	Files      ports.FileSystem
	DB         *sqlite.DB
	Results    ports.ResultStore
	Metrics    *metrics.Collector
	Handler    http.Handler
	HTTPServer *http.Server

	hotReload bool
}

// Options customizes New. Only ConfigPath is required.
type Options struct {
	ConfigPath string

	// LogOutput defaults to stdout.
	LogOutput io.Writer

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Clock ports.Clock

	// DisableHotReload stops Run from watching the config files and SIGHUP.
	DisableHotReload bool
}

// New loads the configuration, stages every bundle and builds the engine and
// HTTP server. Nothing is started.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := SetupLogger(cfg.Logging, out)
	logger.Info().Str("config", opts.ConfigPath).Msg("initializing docforge")

	holder, err := config.NewHolder(opts.ConfigPath, logger)
	if err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	a := &App{
		Logger: logger,
		Config: holder,
		Bus:    events.NewBus(logger),
		Files:  fs.NewOS(""),

		hotReload: !opts.DisableHotReload,
	}
	a.Injector = injector.New(injector.Deps{Clock: clk, Bus: a.Bus, Logger: logger})

	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		a.Metrics = metrics.NewWithRegistry(reg)
		a.Metrics.Subscribe(a.Bus)
		logger.Info().Msg("prometheus metrics enabled")
	}

	if cfg.Results.Enabled {
		if err := a.initDatabase(cfg); err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
	} else {
		a.Results = memory.NewResultStore(memory.DefaultCapacity)
	}

	engine, err := a.buildEngine(cfg, clk)
	if err != nil {
		a.closeDatabase()
		return nil, err
	}
	a.Engine = engine

	if err := a.stage(context.Background(), cfg); err != nil {
		a.closeDatabase()
		return nil, err
	}
	holder.OnChange(a.reload)

	a.Handler = apihttp.NewRouter(apihttp.RouterConfig{
		Engine:         engine,
		Results:        a.Results,
		Metrics:        a.Metrics,
		Gatherer:       opts.Gatherer,
		FileSystem:     requestFiles(cfg),
		MetricsPath:    cfg.Metrics.Path,
		RequestTimeout: cfg.Server.WriteTimeout,
		Logger:         logger,
	})
	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

// requestFiles is the file system HTTP requests read and write through. Without
// a files root, inputs must be inline and output stays in the response.
func requestFiles(cfg *config.Config) ports.FileSystem {
	if cfg.Server.FilesRoot == "" {
		return nil
	}
	return fs.NewConfined(cfg.Resolve(cfg.Server.FilesRoot))
}

func (a *App) initDatabase(cfg *config.Config) error {
	dsn := cfg.Resolve(cfg.Results.DSN)
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	a.DB = db
	a.Results = sqlite.NewResultStore(db)
	a.Logger.Info().Str("dsn", dsn).Msg("execution ledger opened")
	return nil
}

func (a *App) closeDatabase() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func (a *App) buildEngine(cfg *config.Config, clk ports.Clock) (*app.Engine, error) {
	extractor, err := frontmatter.ForName(cfg.Engine.Frontmatter)
	if err != nil {
		return nil, err
	}
	arrays, err := template.ParseArrayFormat(cfg.Engine.ArrayFormat)
	if err != nil {
		return nil, err
	}

	deps := app.EngineDeps{
		Injector:        a.Injector,
		Mapper:          template.NewMapper(arrays),
		Extractor:       extractor,
		AnalysisTimeout: cfg.Engine.Analysis.Timeout,
		Files:           a.Files,
		Catalog:         liveCatalog{holder: a.Config},
		Results:         a.Results,
		Bus:             a.Bus,
		Clock:           clk,
		IDs:             idgen.UUID{},
		Logger:          a.Logger,
		MaxPathLength:   cfg.Engine.MaxPathLength,
	}
	if a.Metrics != nil {
		deps.Metrics = a.Metrics
	}
	if cfg.Engine.Analysis.Mode == "expr" {
		deps.Strategy = analysis.NewExprStrategy()
	}
	return app.NewEngine(deps), nil
}

// stage loads every configured bundle and activates the configured one. When
// none is configured, the bundle that was active before is re-activated so it
// picks up changed files.
func (a *App) stage(ctx context.Context, cfg *config.Config) error {
	previous := a.Injector.Current().BundleName()
	if err := StageBundles(ctx, a.Injector, a.Files, cfg); err != nil {
		return err
	}

	name := cfg.Active
	if _, still := cfg.Bundle(previous); name == "" && still {
		name = previous
	}
	if name == "" {
		a.Logger.Info().Int("bundles", len(cfg.Bundles)).Msg("bundles staged, none active")
		return nil
	}
	if _, err := a.Injector.Activate(ctx, name); err != nil {
		return fmt.Errorf("activate %s: %w", name, err)
	}
	a.Logger.Info().Str("bundle", name).Int("bundles", len(cfg.Bundles)).Msg("bundle activated")
	return nil
}

// reload runs after the holder accepted a new configuration. A failure leaves
// the injector in whatever state the failed activation produced.
func (a *App) reload(cfg *config.Config) {
	ctx := context.Background()
	if err := a.stage(ctx, cfg); err != nil {
		a.Logger.Error().Err(err).Msg("restaging bundles failed")
		return
	}
	a.Bus.Publish(ctx, events.Event{
		Name:    events.ConfigReloaded,
		Source:  "config",
		Subject: a.Config.Path(),
		Data:    map[string]any{"bundles": len(cfg.Bundles), "active": a.Injector.Current().BundleName()},
	})
}

// StageBundles reads the schema, template and prompt files of every bundle in
// cfg and injects them. Bundles no longer configured are cleared.
func StageBundles(ctx context.Context, inj *injector.Injector, files ports.FileSystem, cfg *config.Config) error {
	wanted := make(map[string]bool, len(cfg.Bundles))
	for _, b := range cfg.Bundles {
		wanted[b.Name] = true
		if err := stageBundle(inj, files, cfg, b); err != nil {
			return fmt.Errorf("bundle %s: %w", b.Name, err)
		}
	}
	for _, name := range inj.ListAvailableSchemas() {
		if !wanted[name] {
			inj.ClearSchema(ctx, name)
		}
	}
	return nil
}

func stageBundle(inj *injector.Injector, files ports.FileSystem, cfg *config.Config, b config.BundleConfig) error {
	schemaPath := cfg.Resolve(b.Schema)
	schemaSrc, err := files.ReadTextFile(schemaPath)
	if err != nil {
		return err
	}
	if err := inj.InjectSchemaFile(b.Name, schemaPath, []byte(schemaSrc)); err != nil {
		return err
	}

	tmplSrc, err := files.ReadTextFile(cfg.Resolve(b.Template))
	if err != nil {
		return err
	}
	tmpl, err := template.ParseTemplate(b.FormatOf(), []byte(tmplSrc))
	if err != nil {
		return err
	}
	if err := inj.InjectTemplate(b.Name, tmpl); err != nil {
		return err
	}

	extraction, err := readOptional(files, cfg.Resolve(b.Prompts.Extraction))
	if err != nil {
		return err
	}
	mapping, err := readOptional(files, cfg.Resolve(b.Prompts.Mapping))
	if err != nil {
		return err
	}
	return inj.InjectPrompts(b.Name, extraction, mapping)
}

func readOptional(files ports.FileSystem, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return files.ReadTextFile(path)
}

// liveCatalog answers from whatever configuration the holder has now.
type liveCatalog struct {
	holder *config.Holder
}

func (c liveCatalog) IsExtensionSupported(ext string) bool {
	return c.holder.Get().Catalog().IsExtensionSupported(ext)
}

func (c liveCatalog) GetFormat(name string) (ports.FormatInfo, bool) {
	return c.holder.Get().Catalog().GetFormat(name)
}

// Run starts the HTTP server and the config watchers, then blocks until
// SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	if a.hotReload {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watching disabled")
		}
		a.Config.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Config != nil {
		a.Config.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the process logger from the logging section.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

// Package app builds the service's components from configuration. The HTTP
// server and the command line tool share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"

	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/acquisition"
	"github.com/helixir/reference-service/internal/citation"
	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/database"
	"github.com/helixir/reference-service/internal/events"
	"github.com/helixir/reference-service/internal/index"
	"github.com/helixir/reference-service/internal/mirror"
	"github.com/helixir/reference-service/internal/oa"
	"github.com/helixir/reference-service/internal/observability"
	"github.com/helixir/reference-service/internal/papersources"
	"github.com/helixir/reference-service/internal/pdf"
	"github.com/helixir/reference-service/internal/repository"
)

// ServiceName identifies this service in emitted events.
const ServiceName = "reference-service"

// App holds the wired components. Optional components are nil when disabled.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Sources    *Sources
	Store      repository.PaperRepository
	Resolver   *oa.Resolver
	Downloader *pdf.Downloader
	Pipeline   *acquisition.Pipeline
	Engine     *citation.Engine
	Index      *index.BleveIndex
	Publisher  events.Publisher

	ready   []func(context.Context) error
	closers []func() error
}

// New builds every component enabled in cfg. metrics may be nil, in which
// case nothing is observed. On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx, metrics); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, metrics *observability.Metrics) (err error) {
	cfg, logger := a.Config, a.Logger

	var requestObserver papersources.RequestObserver
	if metrics != nil {
		requestObserver = metrics
	}

	a.Sources, err = NewSources(cfg, requestObserver)
	if err != nil {
		return err
	}

	if err = a.openStore(ctx); err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		kp, kerr := events.NewKafkaPublisher(cfg.Kafka, ServiceName, logger)
		if kerr != nil {
			return kerr
		}
		a.Publisher = kp
		a.closers = append(a.closers, kp.Close)
	} else {
		a.Publisher = events.NopPublisher{}
	}
	emitter := events.NewEmitter(events.EmitterConfig{ServiceName: ServiceName})

	acq := cfg.Acquisition
	downloaderCfg := pdf.Config{
		Timeout:         acq.DownloadTimeout,
		MinSize:         acq.MinPDFBytes,
		MaxSize:         acq.MaxPDFBytes,
		Concurrency:     acq.DownloadConcurrency,
		RequestObserver: requestObserver,
	}
	if acq.StrictPDFValidation {
		downloaderCfg.Inspector = pdf.NewInspector()
	}
	downloaderOpts := []pdf.Option{pdf.WithLogger(logger)}
	resolverOpts := []oa.Option{oa.WithLogger(logger), oa.WithConcurrency(acq.ResolveConcurrency)}
	pipelineOpts := []acquisition.Option{acquisition.WithLogger(logger)}
	engineOpts := []citation.Option{citation.WithLogger(logger), citation.WithPublisher(a.Publisher, emitter)}
	if metrics != nil {
		downloaderOpts = append(downloaderOpts, pdf.WithObserver(metrics))
		resolverOpts = append(resolverOpts, oa.WithObserver(metrics))
		pipelineOpts = append(pipelineOpts, acquisition.WithObserver(metrics))
		engineOpts = append(engineOpts, citation.WithObserver(metrics))
	}

	a.Downloader = pdf.NewDownloader(downloaderCfg, downloaderOpts...)
	a.Resolver = oa.NewResolver(a.Sources.Strategies(acq.TitleSimilarityThreshold, logger), resolverOpts...)

	deps := acquisition.Deps{
		Search:     a.Sources.Registry(acq.SearchTimeout, logger),
		Store:      a.Store,
		Resolver:   a.Resolver,
		Downloader: a.Downloader,
		Publisher:  a.Publisher,
		Emitter:    emitter,
	}

	if acq.Proxy.Enabled {
		session, perr := a.newProxySession(downloaderCfg, downloaderOpts)
		if perr != nil {
			return perr
		}
		deps.Proxy = session
	}

	if cfg.Index.Enabled {
		idx, ierr := index.Open(cfg.Index.Path, index.WithMaxPages(cfg.Index.MaxPages), index.WithLogger(logger))
		if ierr != nil {
			return ierr
		}
		a.Index = idx
		a.closers = append(a.closers, idx.Close)
		deps.Indexer = idx
	}

	if cfg.Mirror.Enabled {
		m, merr := mirror.NewS3Mirror(cfg.Mirror, mirror.WithLogger(logger))
		if merr != nil {
			return merr
		}
		deps.Mirror = m
	}

	a.Pipeline, err = acquisition.NewPipeline(acquisition.Config{
		DownloadDir:         acq.DownloadDir,
		MaxResultsPerSource: acq.MaxResultsPerSource,
		ExtractDOI:          acq.ExtractDOI,
	}, deps, pipelineOpts...)
	if err != nil {
		return err
	}

	if err = a.buildEngine(engineOpts); err != nil {
		return err
	}

	logger.Info().
		Str("store", cfg.Database.Driver).
		Strs("oa_strategies", a.Resolver.Strategies()).
		Bool("proxy", deps.Proxy != nil).
		Bool("index", a.Index != nil).
		Bool("mirror", deps.Mirror != nil).
		Bool("verification", a.Engine != nil).
		Msg("application wired")

	return nil
}

func (a *App) openStore(ctx context.Context) error {
	dbCfg := a.Config.Database
	switch dbCfg.Driver {
	case config.DriverMemory:
		a.Store = repository.NewMemoryPaperRepository()
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, dbCfg.SQLitePath, a.Logger)
		if err != nil {
			return err
		}
		a.Store = repository.NewSQLitePaperRepository(db)
		a.ready = append(a.ready, db.PingContext)
		a.closers = append(a.closers, db.Close)
	case config.DriverPostgres:
		db, err := database.New(ctx, &dbCfg, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		if dbCfg.MigrationAutoRun {
			if err := migrate(db, a.Logger); err != nil {
				return err
			}
		}
		a.Store = repository.NewPgPaperRepository(db)
		a.ready = append(a.ready, db.Ping)
	default:
		return fmt.Errorf("unsupported database driver %q", dbCfg.Driver)
	}
	return nil
}

func migrate(db *database.DB, logger zerolog.Logger) error {
	m, err := database.NewMigrator(db, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	_, err = m.Up()
	return err
}

// newProxySession builds a second downloader sharing the session's cookie jar,
// so the proxy login cookie never leaks into open access downloads.
func (a *App) newProxySession(cfg pdf.Config, opts []pdf.Option) (*acquisition.ProxySession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	cfg.Jar = jar
	downloader := pdf.NewDownloader(cfg, opts...)

	var landing acquisition.LandingResolver
	if a.Sources.DOI.IsEnabled() {
		landing = a.Sources.DOI
	}
	return acquisition.NewProxySession(a.Config.Acquisition.Proxy, landing, downloader, jar,
		acquisition.WithProxyLogger(a.Logger))
}

func (a *App) buildEngine(opts []citation.Option) error {
	searchers := a.Sources.WorkSearchers()
	if len(searchers) == 0 {
		a.Logger.Warn().Msg("no citation search source enabled, verification disabled")
		return nil
	}

	vc := a.Config.Verification
	if vc.CachePath != "" {
		cache, err := citation.OpenBoltCache(vc.CachePath, vc.CacheTTL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, cache.Close)
		opts = append(opts, citation.WithCache(cache))
	}

	engine, err := citation.NewEngine(citation.Config{
		Concurrency:              vc.Concurrency,
		ContextWindow:            vc.ContextWindow,
		TitleSimilarityThreshold: vc.TitleSimilarityThreshold,
		SearchRows:               vc.SearchRows,
	}, searchers, opts...)
	if err != nil {
		return err
	}
	a.Engine = engine
	return nil
}

// Ready reports whether the backing store is reachable.
func (a *App) Ready(ctx context.Context) error {
	for _, check := range a.ready {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

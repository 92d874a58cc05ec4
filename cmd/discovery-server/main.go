package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/listing-discovery/internal/catalog"
	"github.com/mohammed-shakir/listing-discovery/internal/core/config"
	"github.com/mohammed-shakir/listing-discovery/internal/core/health"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
	"github.com/mohammed-shakir/listing-discovery/internal/core/router"
	"github.com/mohammed-shakir/listing-discovery/internal/core/server"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/aggregate"
	"github.com/mohammed-shakir/listing-discovery/internal/invalidation"
	"github.com/mohammed-shakir/listing-discovery/internal/logger"
	"github.com/mohammed-shakir/listing-discovery/internal/metrics"
	"github.com/mohammed-shakir/listing-discovery/internal/proximity"
	"github.com/mohammed-shakir/listing-discovery/internal/search"
	"github.com/mohammed-shakir/listing-discovery/internal/search/textindex"
	"github.com/mohammed-shakir/listing-discovery/internal/searchevents"
	"github.com/mohammed-shakir/listing-discovery/internal/store/pgstore"
	"github.com/mohammed-shakir/listing-discovery/internal/store/redisstore"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "listing-discovery",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	prov := metrics.Init(metrics.Config{
		Service: "listing-discovery",
		Build:   metrics.BuildInfo{Version: Version, Revision: Revision, BuildDate: BuildDate},
	})
	observability.Init(prov.Registerer())

	appLog.Info("starting listing-discovery",
		"addr", cfg.Addr,
		"version", Version,
		"postgres", cfg.PostgresDSN != "",
		"invalidation", cfg.Invalidation.Enabled,
		"events", cfg.Events.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]health.Check{}

	rc, err := redisstore.New(ctx, cfg.RedisAddr,
		redisstore.WithReadTimeout(cfg.RedisTimeout),
		redisstore.WithWriteTimeout(cfg.RedisTimeout))
	if err != nil {
		appLog.Warn("redis unavailable, running without mirror and popular places", "err", err)
	} else {
		defer func() { _ = rc.Close() }()
		checks["redis"] = rc.Ping
	}

	idx := textindex.NewRetriever(appLog, textindex.WithRetain(cfg.Search.RetainSnapshots))
	catOpts := catalog.Options{
		Logger:      appLog,
		Indexer:     idx,
		Cache:       aggregate.NewCache(cfg.FacetCacheSize),
		ListingsTTL: cfg.ListingsTTL,
	}

	var src catalog.Source
	switch {
	case cfg.PostgresDSN != "":
		pool, err := pgstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			appLog.Error("postgres connect failed", "err", err)
			return 1
		}
		defer pool.Close()
		repo := pgstore.New(pool, appLog)
		checks["postgres"] = repo.Ping
		src = repo

		pois, err := repo.POIs(ctx)
		if err != nil {
			appLog.Warn("no points of interest, proximity disabled", "err", err)
		} else if px, err := proximity.NewIndex(pois, cfg.ProximityRes); err != nil {
			appLog.Warn("proximity index", "err", err)
		} else {
			catOpts.Annotator = px
		}
		if rc != nil {
			catOpts.Mirror = rc
		}
	case rc != nil:
		appLog.Info("no POSTGRES_DSN, loading catalog from the redis mirror")
		src = catalog.NewMirrorSource(rc)
	default:
		appLog.Error("no listing source: set POSTGRES_DSN or make redis reachable")
		return 1
	}
	if rc != nil {
		catOpts.Versions = rc
	}

	cat := catalog.New(src, catOpts)
	prov.RegisterCatalog(cat)
	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.ReloadTimeout)
	err = cat.Load(loadCtx)
	cancelLoad()
	if err != nil {
		appLog.Error("initial catalog load failed", "err", err)
		return 1
	}
	checks["catalog"] = func(context.Context) error {
		if !cat.Ready() {
			return errors.New("catalog not loaded")
		}
		return nil
	}

	engOpts := search.Options{
		Logger:       appLog,
		KindTimeout:  cfg.Search.KindTimeout,
		MaxPageSize:  cfg.Search.MaxPageSize,
		PlaceLimit:   cfg.Search.PlaceLimit,
		PopularLimit: cfg.Search.PopularLimit,
	}
	sinks := []invalidation.Sink{cat}
	if rc != nil {
		popular := redisstore.NewPopularCache(rc, cfg.PopularCacheTTL)
		engOpts.Popular = popular
		sinks = append(sinks, invalidation.SinkFunc(func(context.Context, invalidation.Event) error {
			popular.Flush()
			return nil
		}))
	}
	eng := search.New(idx, engOpts)

	hOpts := router.Options{
		Logger:          appLog,
		Facets:          cat,
		DefaultPageSize: cfg.Search.DefaultPageSize,
	}
	if rc != nil {
		hOpts.Popularity = rc
	}
	if cfg.Events.Enabled {
		pub, err := searchevents.NewPublisher(cfg.KafkaBrokers, cfg.Events.Topic, cfg.Events.QueueSize, appLog)
		if err != nil {
			appLog.Warn("search events disabled", "err", err)
		} else {
			defer func() { _ = pub.Close() }()
			hOpts.Events = pub
		}
	}

	runner := invalidation.New(cfg.Invalidation, sinks, invalidation.Options{
		Logger:   appLog,
		Register: prov.Registerer(),
	})
	if err := runner.Start(ctx); err != nil {
		appLog.Error("invalidation runner failed to start", "err", err)
		return 1
	}
	defer runner.Stop()
	if cfg.Invalidation.Enabled {
		checks["invalidation"] = health.ReporterCheck(runner)
	}

	err = server.Run(ctx, cfg, appLog, server.Deps{
		Handlers: router.New(eng, hOpts),
		Metrics:  prov.Handler(),
		Checks:   checks,
	})
	if err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

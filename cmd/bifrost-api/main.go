// Package main runs the Bifrost API service.
//
// It is the composition root: it loads configuration, picks the feed source,
// wires the catalog, bucketing engine and telemetry, and supervises the API
// server, the observability server and the background workers until a
// termination signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/bifrost/internal/api"
	"github.com/rafaeljc/bifrost/internal/cache"
	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/config"
	"github.com/rafaeljc/bifrost/internal/database"
	"github.com/rafaeljc/bifrost/internal/experiments"
	"github.com/rafaeljc/bifrost/internal/feed"
	"github.com/rafaeljc/bifrost/internal/logger"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/store"
	"github.com/rafaeljc/bifrost/internal/syncer"
	"github.com/rafaeljc/bifrost/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	g, gctx := errgroup.WithContext(ctx)
	var checkers []observability.Checker

	// -------------------------------------------------------------------------
	// Feed source
	// -------------------------------------------------------------------------
	var (
		source  feed.Source
		changes <-chan struct{}
	)

	switch cfg.Catalog.Source {
	case config.CatalogSourcePostgres:
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		source = feed.NewPostgresSource(store.NewPostgresStore(pool))
		checkers = append(checkers, database.NewHealthChecker(pool))

		g.Go(func() error {
			database.RunPoolMonitor(gctx, pool, cfg.Database.MonitorInterval)
			return nil
		})

	default:
		files := feed.NewFileSource(cfg.Catalog.ExperimentsFile, cfg.Catalog.SegmentsFile)
		source = files

		if cfg.Catalog.WatchEnabled() {
			watcher, err := feed.NewWatcher(files.Paths(), cfg.Catalog.WatchDebounce, log)
			if err != nil {
				return fmt.Errorf("failed to watch feed files: %w", err)
			}
			changes = watcher.Changes()
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	// -------------------------------------------------------------------------
	// Telemetry
	// -------------------------------------------------------------------------
	memory, err := cache.NewMemoryDimensions(cfg.Telemetry.CacheCapacity, cfg.Telemetry.CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to build dimension cache: %w", err)
	}
	defer memory.Close()

	var dimOpts []telemetry.Option
	if cfg.Telemetry.Publish {
		client, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		dimStore := cache.NewRedisDimensionStore(client, cfg.Telemetry.KeyPrefix, cfg.Telemetry.KeyTTL)
		dimOpts = append(dimOpts, telemetry.WithPublisher(dimStore, cfg.Telemetry.QueueSize, cfg.Telemetry.PublishTimeout))
		checkers = append(checkers, cache.NewHealthChecker(client))
	}
	dimensions := telemetry.NewDimensions(memory, log, dimOpts...)
	g.Go(func() error { return dimensions.Run(gctx) })

	// -------------------------------------------------------------------------
	// Engine
	// -------------------------------------------------------------------------
	cat := catalog.New(log)
	checkers = append(checkers, catalog.NewHealthChecker(cat))

	svc := experiments.NewService(cat, source, log,
		experiments.WithFetchTimeout(cfg.Catalog.FetchTimeout),
		experiments.WithSink(dimensions),
	)

	sync := syncer.New(log, syncer.Config{Interval: cfg.Catalog.ReloadInterval}, svc, changes)
	g.Go(func() error { return sync.Run(gctx) })

	// -------------------------------------------------------------------------
	// Servers
	// -------------------------------------------------------------------------
	router := api.NewAPI(svc, dimensions, &cfg.Server)
	apiServer := api.NewServer(log, &cfg.Server, router.Router, cfg.App.ShutdownTimeout)
	g.Go(func() error { return apiServer.Run(gctx) })

	obsServer := observability.NewServer(log, &cfg.Observability, checkers...)
	g.Go(func() error { return obsServer.Run(gctx) })

	log.Info("bifrost started",
		slog.String("catalog_source", source.Name()),
		slog.Bool("telemetry_publish", dimensions.Publishing()),
	)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("bifrost stopped")
	return nil
}

// Command txindexer runs the transaction-indexing pipeline end to end:
// config -> storage backend -> assembly engine -> progress tracker ->
// metrics server -> stream driver. Mirrors the source's main.rs wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/near/tx-indexer/assembly"
	"github.com/near/tx-indexer/config"
	applog "github.com/near/tx-indexer/log"
	"github.com/near/tx-indexer/metrics"
	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/progress"
	"github.com/near/tx-indexer/storage"
	"github.com/near/tx-indexer/storage/boltstore"
	"github.com/near/tx-indexer/storage/sqlstore"
	"github.com/near/tx-indexer/streamer"
)

func main() {
	app := &cli.App{
		Name:  "txindexer",
		Usage: "index chain transactions into durable storage",
		Flags: config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "txindexer:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromCliContext(c)
	if err != nil {
		return err
	}

	logger, err := applog.New(applog.Options{})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	writerLock, err := storage.AcquireWriterLock(cfg.StorePath)
	if err != nil {
		return err
	}
	defer writerLock.Release()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.ReadCacheSize > 0 {
		cached, err := storage.NewCachedStore(store, cfg.ReadCacheSize)
		if err != nil {
			return fmt.Errorf("init read cache: %w", err)
		}
		store = cached
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	retention := assembly.RetentionConfig{MaxAgeBlocks: primitives.BlockHeight(cfg.RetainAge)}
	engine := assembly.New(cfg.IndexerId, store, retention, m, logger)

	source, err := openBlockSource(cfg)
	if err != nil {
		return err
	}

	tracker := progress.New(store, cfg.IndexerId)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startHeight, err := tracker.Resolve(ctx, cfg.StartMode, primitives.BlockHeight(cfg.FromHeight), source.LatestHeight)
	if err != nil {
		return fmt.Errorf("resolve start height: %w", err)
	}
	logger.Info("resolved start height", zap.Uint64("height", uint64(startHeight)))

	metricsServer := metrics.NewServer(cfg.MetricsAddr, registry, cfg.DebugSecret, engine.DebugSnapshot, logger)
	driver := streamer.New(source, engine, logger)

	// The metrics server and the stream driver run as one unit: either one
	// failing tears down the other via the shared group context, and a
	// signal-triggered cancellation of ctx propagates the same way.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metricsServer.ListenAndServe(gctx) })
	g.Go(func() error { return driver.Run(gctx, startHeight) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func openStore(cfg config.Config) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		return boltstore.Open(cfg.StorePath)
	case config.BackendSQL:
		return sqlstore.Open(cfg.StorePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func openBlockSource(cfg config.Config) (blockSourceWithClose, error) {
	if strings.HasPrefix(cfg.BlockSource, "ws://") || strings.HasPrefix(cfg.BlockSource, "wss://") {
		return streamer.NewWebsocketBlockSource(cfg.BlockSource), nil
	}
	return streamer.NewFileBlockSource(cfg.BlockSource)
}

// blockSourceWithClose is the common surface of streamer.FileBlockSource and
// streamer.WebsocketBlockSource that satisfies streamer.BlockSource.
type blockSourceWithClose = streamer.BlockSource

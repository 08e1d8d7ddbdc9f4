package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jizpi/arm-ledger/internal/config"
	"github.com/jizpi/arm-ledger/internal/db"
	"github.com/jizpi/arm-ledger/internal/feed"
	"github.com/jizpi/arm-ledger/internal/ledger"
	"github.com/jizpi/arm-ledger/internal/logging"
	"github.com/jizpi/arm-ledger/internal/metrics"
	"github.com/jizpi/arm-ledger/internal/visit"
	"github.com/jizpi/arm-ledger/internal/web"
)

func newServeCmd() *cobra.Command {
	var addr string
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the HTTP API. Settings come from the config file, .env and ARM_* variables.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dev {
				cfg.DevMode = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&dev, "dev", false, "development mode: console logs at debug level")

	return cmd
}

// runServe wires storage, the snapshot hub, optional Redis fan-out and the
// HTTP server, and runs them until ctx ends or one of them fails.
func runServe(ctx context.Context, cfg config.Config) error {
	logger, err := logging.Setup(cfg.DevMode, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeDB(database)
	logger.Info("database opened", zap.String("dialect", string(database.Dialect)))

	repo := visit.NewRepository(database)
	m := metrics.New()
	hub := feed.NewHub(repo, cfg.StatsOptions(), logger).
		WithInterval(cfg.RefreshInterval).
		WithObserver(m)

	g, ctx := errgroup.WithContext(ctx)

	var notifier ledger.Notifier = hub
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		rn := feed.NewRedisNotifier(rdb, cfg.Redis.Channel, logger)
		if err := rn.Ping(ctx); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		notifier = feed.Notifiers{hub, rn}
		g.Go(func() error { return rn.Listen(ctx, hub) })
	}

	svc := ledger.NewService(repo, notifier, cfg.Location(), logger).WithRecorder(m)

	srv := web.NewServer(web.Options{
		Ledger:      svc,
		Snapshots:   hub,
		Catalog:     cfg.Resources,
		Location:    cfg.Location(),
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     m.Handler(),
		Ready:       database.PingContext,
		Logger:      logger,
	})

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx, cfg.Addr) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package app

import (
	"context"
	"fmt"
	"time"

	"cryptostats/config"
	"cryptostats/internal/httpapi"
	"cryptostats/internal/market"
	"cryptostats/internal/market/consumer"
	"cryptostats/internal/market/feed"
	"cryptostats/internal/market/scheduler"
	"cryptostats/internal/market/stats"
	"cryptostats/internal/market/updater"
	"cryptostats/internal/metrics"
	"cryptostats/pkg/bus"
	"cryptostats/pkg/coingecko"
	"cryptostats/pkg/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// RunAPI serves the HTTP API and consumes refresh signals until ctx is done.
// With the local bus driver the scheduler runs in the same process.
func RunAPI(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	catalog := market.CatalogFromConfig(cfg.Assets)
	logger.Info("starting API server", zap.Stringer("assets", catalog), zap.String("store", cfg.Store.Driver), zap.String("bus", cfg.Bus.Driver))

	openCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	store, err := storage.Open(openCtx, cfg, catalog, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer closeStore(store, logger)

	signals, err := bus.Open(ctx, cfg.Bus, logger)
	if err != nil {
		return fmt.Errorf("failed to connect bus: %w", err)
	}
	defer closeBus(signals, logger)

	recorder := metrics.NewRecorder()

	client := coingecko.NewRESTClient(
		cfg.CoinGecko.BaseURL,
		cfg.CoinGecko.Key(cfg.App.Environment),
		cfg.CoinGecko.Timeout,
		cfg.CoinGecko.RatePerMinute,
	)

	up := updater.New(catalog, client, store, updater.Config{
		TaskTimeout: cfg.Update.TaskTimeout,
		Coalesce:    cfg.Update.Coalesce,
	}, recorder, logger)

	hub := feed.NewHub(logger)
	defer hub.Close()
	up.SetNotifier(hub)

	svc := stats.NewService(catalog, store, up, logger,
		stats.WithWindow(cfg.Stats.Window),
		stats.WithRefreshPolicy(stats.RefreshPolicy{Retries: cfg.Stats.RefreshRetries}),
	)

	// subscription outlives ctx so it is released only after the server stops
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.New(signals, up, recorder, logger).Run(consumerCtx)
	}()

	if cfg.Bus.Driver == "local" {
		sched := newScheduler(signals, cfg, recorder, logger)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	if cfg.App.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(svc, up, cfg.Log.OutputFile, logger.Named("http"))
	router := httpapi.NewRouter(handler, httpapi.Options{
		Metrics: recorder.Handler(),
		Feed:    hub,
	}, recorder, logger.Named("http"))
	server := httpapi.NewServer(cfg.HTTP, router, logger)
	serverErr := server.Start()

	select {
	case <-ctx.Done():
		logger.Info("shutting down API server")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-consumerDone:
		if err != nil {
			return fmt.Errorf("bus consumer: %w", err)
		}
		logger.Warn("bus subscription ended, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", zap.Error(err))
	}

	stopConsumer()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("in-flight update cycles still running at shutdown")
	}
	return nil
}

// RunWorker emits refresh signals on the schedule until ctx is done.
func RunWorker(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	signals, err := bus.Open(ctx, cfg.Bus, logger)
	if err != nil {
		return fmt.Errorf("failed to connect bus: %w", err)
	}
	defer closeBus(signals, logger)

	sched := newScheduler(signals, cfg, metrics.NewRecorder(), logger)
	if err := sched.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	sched.Stop()
	return nil
}

func newScheduler(pub scheduler.Publisher, cfg *config.Config, recorder *metrics.Recorder, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(pub, scheduler.Config{
		Period:       cfg.Update.Period,
		InitialDelay: cfg.Update.InitialDelay,
	}, recorder, logger)
}

func closeBus(b bus.Bus, logger *zap.Logger) {
	if err := b.Close(); err != nil {
		logger.Warn("bus close failed", zap.Error(err))
	}
}

func closeStore(s storage.SnapshotStore, logger *zap.Logger) {
	if err := s.Close(); err != nil {
		logger.Warn("snapshot store close failed", zap.Error(err))
	}
}

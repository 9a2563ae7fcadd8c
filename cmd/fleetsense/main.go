package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/savegress/fleetsense/internal/alerts"
	"github.com/savegress/fleetsense/internal/analytics"
	"github.com/savegress/fleetsense/internal/api"
	"github.com/savegress/fleetsense/internal/cache"
	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/internal/telemetry"
)

func main() {
	// A missing .env file is fine; exported variables still apply.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "fleetsense").Logger()

	var cfg *config.Config
	var err error
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	logger.Info().
		Str("environment", cfg.Server.Environment).
		Str("storage", cfg.Storage.Type).
		Msg("starting fleetsense")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, &cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	snapshotCache := cache.New(ctx, cfg.Cache)
	defer snapshotCache.Close()
	if snapshotCache.Enabled() {
		logger.Info().Msg("snapshot cache enabled")
	}

	alertEngine := alerts.NewEngine(store, cfg.Alerts, logger)
	ingestion := telemetry.NewService(store, alertEngine, logger)
	aggregator := analytics.NewAggregator(store, snapshotCache, cfg.Analytics, logger)

	scheduler := analytics.NewScheduler(aggregator, cfg.Analytics.Interval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := api.NewServer(store, ingestion, aggregator, cfg.Auth, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("stopped")
}

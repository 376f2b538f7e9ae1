package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/internal/cron"
	"github.com/veriline/veriline-backend/internal/enrichment"
	"github.com/veriline/veriline-backend/pkg/config"
	"github.com/veriline/veriline-backend/pkg/db"
	"github.com/veriline/veriline-backend/pkg/logger"
	"github.com/veriline/veriline-backend/pkg/metrics"
	"github.com/veriline/veriline-backend/pkg/migrate"
	"github.com/veriline/veriline-backend/pkg/outbox"
	"github.com/veriline/veriline-backend/pkg/redis"
)

const lockKeyFormat = "vl:vendor-sync:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "vendor-sync"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "vendor-sync"

	logg = logger.New(logger.Options{
		ServiceName: "vendor-sync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	strategies, err := enrichment.StrategiesFromConfig(cfg.Enrichment)
	if err != nil {
		logg.Error(context.Background(), "failed to build vendor strategies", err)
		os.Exit(1)
	}
	fetcher, err := enrichment.NewFetcher(strategies, &http.Client{Timeout: cfg.Enrichment.HTTPTimeout}, cfg.Enrichment.UserAgent)
	if err != nil {
		logg.Error(context.Background(), "failed to build vendor fetcher", err)
		os.Exit(1)
	}

	vendorSyncJob, err := cron.NewVendorSyncJob(cron.VendorSyncJobParams{
		Logger:     logg,
		Catalog:    catalog.NewRepository(dbClient.DB()),
		Fetcher:    fetcher,
		StaleAfter: cfg.VendorSync.StaleAfter,
		BatchSize:  cfg.VendorSync.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor sync job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 2*cfg.VendorSync.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(vendorSyncJob, retentionJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.VendorSync.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting vendor sync worker")

	go func() {
		if err := metrics.ListenAndServe(ctx, ":"+cfg.App.MetricsPort); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "vendor sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "vendor sync worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/veriline/veriline-backend/internal/audit"
	"github.com/veriline/veriline-backend/pkg/bigquery"
	"github.com/veriline/veriline-backend/pkg/config"
	"github.com/veriline/veriline-backend/pkg/logger"
	"github.com/veriline/veriline-backend/pkg/metrics"
	"github.com/veriline/veriline-backend/pkg/outbox/idempotency"
	"github.com/veriline/veriline-backend/pkg/pubsub"
	"github.com/veriline/veriline-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "audit-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "audit-worker"

	logg = logger.New(logger.Options{
		ServiceName: "audit-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.AuditSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "audit subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	ledgerWriter, err := audit.NewWriter(bqClient, cfg.BigQuery.DecisionsTable, audit.RetryPolicy{})
	requireResource(ctx, logg, "ledger writer", err)

	ledger, err := audit.NewLedger(ledgerWriter, logg)
	requireResource(ctx, logg, "ledger", err)

	worker, err := audit.NewWorker(subscription, ledger, manager, logg)
	requireResource(ctx, logg, "audit worker", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "audit worker ready")

	go func() {
		if err := metrics.ListenAndServe(runCtx, ":"+cfg.App.MetricsPort); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(runCtx, "metrics server stopped unexpectedly", err)
		}
	}()

	if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "audit worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

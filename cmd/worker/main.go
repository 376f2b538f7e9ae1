package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/internal/enrichment"
	"github.com/veriline/veriline-backend/internal/lineitems"
	"github.com/veriline/veriline-backend/internal/oracle"
	"github.com/veriline/veriline-backend/internal/orchestrator"
	"github.com/veriline/veriline-backend/internal/pipeline"
	"github.com/veriline/veriline-backend/internal/prevalidation"
	"github.com/veriline/veriline-backend/internal/pricing"
	"github.com/veriline/veriline-backend/internal/resolver"
	"github.com/veriline/veriline-backend/internal/rules"
	"github.com/veriline/veriline-backend/pkg/config"
	"github.com/veriline/veriline-backend/pkg/db"
	"github.com/veriline/veriline-backend/pkg/logger"
	"github.com/veriline/veriline-backend/pkg/metrics"
	"github.com/veriline/veriline-backend/pkg/migrate"
	"github.com/veriline/veriline-backend/pkg/outbox"
	"github.com/veriline/veriline-backend/pkg/outbox/idempotency"
	"github.com/veriline/veriline-backend/pkg/pubsub"
	"github.com/veriline/veriline-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	lineItemRepo := lineitems.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	orchestratorSvc, err := orchestrator.NewService(lineItemRepo, dbClient, outboxSvc, pipelineMetrics, cfg.Orchestrator.MaxIngestPasses)
	if err != nil {
		logg.Error(context.Background(), "failed to create orchestrator", err)
		os.Exit(1)
	}

	var engine prevalidation.Engine
	var classifier *enrichment.Classifier
	if oracleClient := oracle.NewClient(cfg.OpenAI); oracleClient != nil {
		engine = prevalidation.NewEngine(oracleClient)
		classifier = enrichment.NewClassifier(oracleClient)
	} else {
		logg.Warn(context.Background(), "oracle disabled, running rule-only validation")
		engine = prevalidation.NewEngine(nil)
		classifier = enrichment.NewClassifier(nil)
	}

	resolverSvc, err := resolver.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create resolver", err)
		os.Exit(1)
	}

	strategies, err := enrichment.StrategiesFromConfig(cfg.Enrichment)
	if err != nil {
		logg.Error(context.Background(), "failed to build vendor strategies", err)
		os.Exit(1)
	}
	fetcher, err := enrichment.NewFetcher(strategies, &http.Client{Timeout: cfg.Enrichment.HTTPTimeout}, cfg.Enrichment.UserAgent)
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor fetcher", err)
		os.Exit(1)
	}
	ingester, err := enrichment.NewService(fetcher, catalogRepo, classifier)
	if err != nil {
		logg.Error(context.Background(), "failed to create enrichment service", err)
		os.Exit(1)
	}

	pricer, err := pricing.NewService(catalogRepo, cfg.Pricing.ToleranceFactor)
	if err != nil {
		logg.Error(context.Background(), "failed to create price validator", err)
		os.Exit(1)
	}

	rulesSvc, err := rules.NewService(rules.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create rules engine", err)
		os.Exit(1)
	}

	pipelineSvc, err := pipeline.NewService(
		lineItemRepo,
		orchestratorSvc,
		engine,
		resolverSvc,
		ingester,
		pricer,
		rulesSvc,
		pipeline.ProcessingSink{Orchestrator: orchestratorSvc},
		pipelineMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create pipeline", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	service, err := NewService(pubsubClient.LineItemSubscription(), pipelineSvc, manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})
	logg.Info(ctx, "starting pipeline worker")

	go func() {
		if err := metrics.ListenAndServe(ctx, ":"+cfg.App.MetricsPort); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "pipeline worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "pipeline worker shutting down gracefully")
}

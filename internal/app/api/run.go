package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	workerlog "go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	commerceserver "github.com/Apurer/go-commerce-saga/go"
	"github.com/Apurer/go-commerce-saga/internal/app/consumers"
	"github.com/Apurer/go-commerce-saga/internal/app/infra"
	catalogclient "github.com/Apurer/go-commerce-saga/internal/clients/http/catalog"
	catalogadapter "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/external/catalog"
	ordersmemory "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/memory"
	ordersobs "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/observability"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/payment"
	orderspostgres "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/persistence/postgres"
	ordersworkflows "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/workflows"
	ordersapp "github.com/Apurer/go-commerce-saga/internal/domains/orders/application"
	ordersports "github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/httpserver"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	platformobservability "github.com/Apurer/go-commerce-saga/internal/platform/observability"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
	outboxpostgres "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
)

// Run boots the orders HTTP API with observability, repositories, the outbox
// relay and workflows wired. Without Kafka the projections run in-process and
// their read models are served by the same router.
func Run(ctx context.Context, cfg Config) error {
	instruments, shutdown, err := platformobservability.Init(ctx, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	db, closeDB := infra.Postgres(ctx, cfg.PostgresDSN, logger)
	defer closeDB()
	locks, closeLocks := infra.Locker(ctx, cfg.RedisAddr, logger)
	defer closeLocks()
	bus, err := infra.NewBus(cfg.KafkaBrokers, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka: %w", err)
	}
	defer bus.Close()
	registry := infra.Registry()

	// Events of in-memory producers; relayed alongside the durable outbox.
	events := outbox.NewLog()
	backend, err := BuildOrderBackend(ctx, cfg, db, locks, events, instruments)
	if err != nil {
		return err
	}
	orderService := backend.Service
	var orderWorkflows ordersports.WorkflowOrchestrator = ordersworkflows.NewInlineOrderWorkflows(orderService)
	if cfg.WorkflowsEnabled {
		if temporalClient, err := connectTemporalClient(cfg, instruments); err != nil {
			logger.Warn("Temporal workflows unavailable, running inline CreateOrder", slog.String("error", err.Error()))
		} else {
			defer temporalClient.Close()
			orderWorkflows = ordersworkflows.NewTemporalOrderWorkflows(temporalClient, cfg.TemporalTaskQueue)
			logger.Info("Temporal workflows enabled", slog.String("namespace", cfg.TemporalNamespace), slog.String("taskQueue", cfg.TemporalTaskQueue))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	handlers := commerceserver.ApiHandleFunctions{}
	if bus.InProcess {
		readModels := consumers.BuildReadModels(db, events, locks, logger)
		opts := consumers.ConsumerOptions(cfg.ConsumerMaxAttempts, bus.DeadLetters, registry, logger)
		if err := consumers.Start(gctx, g, bus.Broker, readModels.Subscriptions(), opts...); err != nil {
			return err
		}
		handlers = readModels.Handlers()
	}
	handlers.OrdersAPI = commerceserver.NewOrdersAPI(orderService, orderWorkflows)
	handlers.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	for name, store := range backend.Outboxes {
		relay := outbox.NewRelay(store, bus.Broker,
			outbox.WithLogger(logger.With(slog.String("outbox", name))),
			outbox.WithInterval(cfg.OutboxPollInterval),
			outbox.WithRegisterer(prometheus.WrapRegistererWith(prometheus.Labels{"outbox": name}, registry)),
		)
		g.Go(func() error { return relay.Run(gctx) })
	}

	commerceserver.SetErrorLogger(logger)
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName))
	commerceserver.NewRouterWithGinEngine(router, handlers)
	g.Go(func() error { return httpserver.Run(gctx, cfg.HTTPAddr, router, logger) })

	logger.Info("commerce API started", slog.Bool("inProcessBus", bus.InProcess), slog.Bool("postgres", db != nil))
	return g.Wait()
}

// OrderBackend is the instrumented order saga and the outboxes its writes
// land in.
type OrderBackend struct {
	Service  ordersports.Service
	Outboxes map[string]outbox.Store
}

// BuildOrderBackend wires the order saga on postgres when db is set and in
// memory otherwise. events is always part of Outboxes because the in-memory
// catalog publishes to it.
func BuildOrderBackend(ctx context.Context, cfg Config, db *gorm.DB, locks keyedlock.Locker, events *outbox.Log, instruments *platformobservability.Instruments) (OrderBackend, error) {
	logger := instruments.Logger
	var (
		repo           ordersports.Repository
		idempotency    ordersports.IdempotencyStore
		reconciliation ordersports.ReconciliationSink
		outboxes       = map[string]outbox.Store{"memory": events}
	)
	if db == nil {
		logger.Info("order repository configured in memory")
		repo = ordersmemory.NewRepository(events)
		idempotency = ordersmemory.NewIdempotencyStore()
		reconciliation = ordersmemory.NewReconciliationLog()
	} else {
		logger.Info("order repository configured with postgres")
		repo = orderspostgres.NewRepository(db)
		idempotency = orderspostgres.NewIdempotencyStore(db)
		reconciliation = orderspostgres.NewReconciliationSink(db)
		outboxes["postgres"] = outboxpostgres.NewStore(db)
	}
	inventory, promotions, err := buildCatalog(ctx, cfg, events, logger)
	if err != nil {
		return OrderBackend{}, err
	}

	core := ordersapp.NewService(repo, inventory, promotions, payment.NewSimulator(),
		ordersapp.WithIdempotencyStore(idempotency),
		ordersapp.WithReconciliationSink(reconciliation),
		ordersapp.WithLocker(locks),
		ordersapp.WithLogger(logger),
	)
	service := ordersobs.New(core,
		ordersobs.WithLogger(logger),
		ordersobs.WithTracer(instruments.Tracer("internal.orders.application")),
		ordersobs.WithMeter(instruments.Meter("internal.orders.application")),
	)
	return OrderBackend{Service: service, Outboxes: outboxes}, nil
}

// buildCatalog uses the remote inventory and promotion services when
// configured and a seeded in-memory catalog otherwise.
func buildCatalog(ctx context.Context, cfg Config, events *outbox.Log, logger *slog.Logger) (ordersports.Inventory, ordersports.Promotions, error) {
	if !cfg.ExternalCatalog() {
		logger.Warn("catalog services not configured, using the seeded in-memory catalog")
		catalog := ordersmemory.NewCatalog(events)
		if err := catalog.Seed(ctx); err != nil {
			return nil, nil, fmt.Errorf("seed catalog: %w", err)
		}
		return catalog, catalog, nil
	}
	inventoryClient, err := catalogclient.NewClient(cfg.InventoryBaseURL)
	if err != nil {
		return nil, nil, err
	}
	promotionClient, err := catalogclient.NewClient(cfg.PromotionBaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("catalog services configured",
		slog.String("inventory", cfg.InventoryBaseURL),
		slog.String("promotions", cfg.PromotionBaseURL),
	)
	return catalogadapter.NewInventory(inventoryClient), catalogadapter.NewPromotions(promotionClient), nil
}

func connectTemporalClient(cfg Config, instruments *platformobservability.Instruments) (client.Client, error) {
	tracingInterceptor, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{
		Tracer: instruments.Tracer("temporal-client"),
	})
	if err != nil {
		return nil, err
	}
	options := client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    workerlog.NewStructuredLogger(instruments.Logger),
	}
	options.Interceptors = append(options.Interceptors, tracingInterceptor)
	return client.Dial(options)
}

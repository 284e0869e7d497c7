package consumers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	commerceserver "github.com/Apurer/go-commerce-saga/go"
	"github.com/Apurer/go-commerce-saga/internal/app/infra"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/httpserver"
	platformobservability "github.com/Apurer/go-commerce-saga/internal/platform/observability"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
	"github.com/Apurer/go-commerce-saga/internal/platform/retry"
)

// ErrNoBroker is returned when the consumers process has no shared bus to read.
var ErrNoBroker = errors.New("KAFKA_BROKERS is required to run the projection consumers")

// Run boots the projection consumers, the shipment outbox relay and the
// read-model HTTP API. It returns when ctx is cancelled or a component fails.
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

	if len(cfg.KafkaBrokers) == 0 {
		return ErrNoBroker
	}
	bus, err := infra.NewBus(cfg.KafkaBrokers, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka: %w", err)
	}
	defer bus.Close()

	db, closeDB := infra.Postgres(ctx, cfg.PostgresDSN, logger)
	defer closeDB()
	locks, closeLocks := infra.Locker(ctx, cfg.RedisAddr, logger)
	defer closeLocks()

	registry := infra.Registry()
	readModels := BuildReadModels(db, outbox.NewLog(), locks, logger)

	g, gctx := errgroup.WithContext(ctx)
	if err := Start(gctx, g, bus.Broker, readModels.Subscriptions(), ConsumerOptions(cfg.MaxAttempts, bus.DeadLetters, registry, logger)...); err != nil {
		return err
	}
	relay := outbox.NewRelay(readModels.ShipmentOutbox, bus.Broker,
		outbox.WithLogger(logger),
		outbox.WithInterval(cfg.OutboxPollInterval),
		outbox.WithRegisterer(prometheus.WrapRegistererWith(prometheus.Labels{"outbox": "shipments"}, registry)),
	)
	g.Go(func() error { return relay.Run(gctx) })

	handlers := readModels.Handlers()
	handlers.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	commerceserver.SetErrorLogger(logger)
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName))
	commerceserver.NewRouterWithGinEngine(router, handlers)
	g.Go(func() error { return httpserver.Run(gctx, cfg.HTTPAddr, router, logger) })

	logger.Info("projection consumers running", slog.Int("queues", len(readModels.Subscriptions())))
	return g.Wait()
}

// ConsumerOptions configures every projection consumer the same way.
func ConsumerOptions(maxAttempts int, deadLetters eventbus.DeadLetterSink, reg prometheus.Registerer, logger *slog.Logger) []eventbus.ConsumerOption {
	policy := retry.DefaultPolicy
	if maxAttempts > 0 {
		policy.MaxAttempts = maxAttempts
	}
	return []eventbus.ConsumerOption{
		eventbus.WithRetryPolicy(policy),
		eventbus.WithLogger(logger),
		eventbus.WithMetrics(eventbus.NewMetrics(reg)),
		eventbus.WithDeadLetterSink(deadLetters),
	}
}

// Start binds a queue per subscription and runs its consumer on g.
func Start(ctx context.Context, g *errgroup.Group, broker eventbus.Broker, subs []Subscription, opts ...eventbus.ConsumerOption) error {
	for _, sub := range subs {
		queue, err := broker.Bind(sub.Queue, sub.Topics...)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", sub.Queue, err)
		}
		consumer := eventbus.NewConsumer(sub.Queue, queue, sub.Handler, opts...)
		g.Go(func() error {
			defer queue.Close()
			return consumer.Run(ctx)
		})
	}
	return nil
}

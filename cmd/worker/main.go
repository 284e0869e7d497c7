package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	workerlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/Apurer/go-commerce-saga/internal/app/api"
	"github.com/Apurer/go-commerce-saga/internal/app/infra"
	platformobservability "github.com/Apurer/go-commerce-saga/internal/platform/observability"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
	orderactivities "github.com/Apurer/go-commerce-saga/internal/platform/temporal/activities/orders"
	orderworkflows "github.com/Apurer/go-commerce-saga/internal/platform/temporal/workflows/orders"
)

func main() {
	ctx := context.Background()
	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	instruments, shutdown, err := platformobservability.Init(ctx, "commerce-worker")
	if err != nil {
		log.Fatalf("failed to initialize observability: %v", err)
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
	if db == nil {
		logger.Warn("worker orders live in memory; the API will not see them")
	}
	locks, closeLocks := infra.Locker(ctx, cfg.RedisAddr, logger)
	defer closeLocks()
	// The API process relays the durable outbox; this log only collects
	// events of a local in-memory catalog.
	backend, err := api.BuildOrderBackend(ctx, cfg, db, locks, outbox.NewLog(), instruments)
	if err != nil {
		logger.Error("failed to build order service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	orderActivities := orderactivities.NewActivities(backend.Service)

	tracerOptions := temporalotel.TracerOptions{Tracer: instruments.Tracer("temporal-worker")}
	tracingInterceptor, err := temporalotel.NewTracingInterceptor(tracerOptions)
	if err != nil {
		logger.Error("failed to configure Temporal tracing interceptor", slog.String("error", err.Error()))
		os.Exit(1)
	}
	clientOptions := client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    workerlog.NewStructuredLogger(logger),
	}
	clientOptions.Interceptors = append(clientOptions.Interceptors, tracingInterceptor)
	temporalClient, err := client.Dial(clientOptions)
	if err != nil {
		logger.Error("failed to create Temporal client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(orderworkflows.OrderCreationWorkflow, workflow.RegisterOptions{Name: orderworkflows.OrderCreationWorkflowName})
	w.RegisterActivityWithOptions(orderActivities.CreateOrder, activity.RegisterOptions{Name: orderactivities.CreateOrderActivityName})

	logger.Info("worker listening", slog.String("taskQueue", cfg.TemporalTaskQueue), slog.String("namespace", clientOptions.Namespace))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Temporal worker exited with error", slog.String("error", err.Error()))
		return
	}
	logger.Info("Temporal worker stopped")
}

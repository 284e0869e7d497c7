// Package infra builds the process-wide adapters shared by the commerce
// binaries. Every builder degrades to an in-process implementation when its
// backing service is not configured or unreachable.
package infra

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus/kafka"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus/memory"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	redislock "github.com/Apurer/go-commerce-saga/internal/platform/keyedlock/redis"
	"github.com/Apurer/go-commerce-saga/internal/platform/migrations"
	platformpostgres "github.com/Apurer/go-commerce-saga/internal/platform/postgres"
)

// Postgres connects and migrates. It returns nil when dsn is empty or the
// database cannot be used.
func Postgres(ctx context.Context, dsn string, logger *slog.Logger) (*gorm.DB, func()) {
	if strings.TrimSpace(dsn) == "" {
		logger.Warn("POSTGRES_DSN not set, falling back to in-memory stores")
		return nil, func() {}
	}
	db, err := platformpostgres.Connect(ctx, dsn)
	if err != nil {
		logger.Warn("failed to connect to postgres, falling back to in-memory stores", slog.String("error", err.Error()))
		return nil, func() {}
	}
	if err := migrations.Run(db); err != nil {
		logger.Warn("failed to migrate postgres schema, falling back to in-memory stores", slog.String("error", err.Error()))
		_ = platformpostgres.Close(db)
		return nil, func() {}
	}
	logger.Info("postgres connection established")
	return db, func() { _ = platformpostgres.Close(db) }
}

// Locker returns a Redis-backed locker when addr is set and answers a ping,
// and the in-process sharded locker otherwise.
func Locker(ctx context.Context, addr string, logger *slog.Logger) (keyedlock.Locker, func()) {
	if strings.TrimSpace(addr) == "" {
		return keyedlock.NewSharded(0), func() {}
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process locks", slog.String("addr", addr), slog.String("error", err.Error()))
		_ = client.Close()
		return keyedlock.NewSharded(0), func() {}
	}
	logger.Info("redis locks enabled", slog.String("addr", addr))
	locker := redislock.NewLocker(client, redislock.WithReleaseErrorHandler(func(key string, err error) {
		logger.Warn("lock release failed", slog.String("key", key), slog.String("error", err.Error()))
	}))
	return locker, func() { _ = client.Close() }
}

// Bus is the transport a process publishes to and consumes from.
type Bus struct {
	Broker      eventbus.Broker
	DeadLetters eventbus.DeadLetterSink
	// InProcess is true for the memory broker, whose queues only see events
	// published by the same process.
	InProcess bool
	close     func() error
}

func (b Bus) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// NewBus connects to Kafka when brokers are given and falls back to the
// memory broker otherwise.
func NewBus(brokers []string, logger *slog.Logger) (Bus, error) {
	if len(brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, using the in-process event bus")
		return Bus{Broker: memory.NewBroker(), DeadLetters: memory.NewDeadLetters(), InProcess: true}, nil
	}
	broker, err := kafka.NewBroker(brokers)
	if err != nil {
		return Bus{}, err
	}
	logger.Info("kafka event bus enabled", slog.Any("brokers", brokers))
	return Bus{Broker: broker, DeadLetters: broker.DeadLetters(), close: broker.Close}, nil
}

// Registry returns a Prometheus registry carrying the Go runtime and process
// collectors.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

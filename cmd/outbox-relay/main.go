package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus/kafka"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
	outboxpostgres "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
	platformpostgres "github.com/Apurer/go-commerce-saga/internal/platform/postgres"
)

// Drains the durable outbox once. Meant to run as a cron job next to API
// replicas that have their relay disabled or stopped.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	db, err := platformpostgres.Connect(ctx, os.Getenv("POSTGRES_DSN"), platformpostgres.WithPool(2, 1, 0))
	if err != nil {
		log.Fatalf("cannot drain the outbox: %v", err)
	}
	defer platformpostgres.Close(db)
	broker, err := kafka.NewBroker(kafka.ParseBrokers(os.Getenv("KAFKA_BROKERS")))
	if err != nil {
		log.Fatalf("failed to configure kafka: %v", err)
	}
	defer broker.Close()

	relay := outbox.NewRelay(outboxpostgres.NewStore(db), broker, outbox.WithLogger(logger))
	published, err := relay.Flush(ctx)
	if err != nil {
		log.Fatalf("outbox drain stopped after %d records: %v", published, err)
	}
	log.Printf("outbox drain completed: %d records published", published)
}

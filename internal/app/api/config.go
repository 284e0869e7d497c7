package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/Apurer/go-commerce-saga/internal/app/consumers"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus/kafka"
	orderworkflows "github.com/Apurer/go-commerce-saga/internal/platform/temporal/workflows/orders"
)

// Config carries environment-driven settings for the API process.
type Config struct {
	ServiceName         string
	HTTPAddr            string
	PostgresDSN         string
	KafkaBrokers        []string
	RedisAddr           string
	InventoryBaseURL    string
	PromotionBaseURL    string
	WorkflowsEnabled    bool
	TemporalAddress     string
	TemporalNamespace   string
	TemporalTaskQueue   string
	OutboxPollInterval  time.Duration
	ConsumerMaxAttempts int
}

// LoadConfig reads environment variables, applies defaults, and validates basic constraints.
func LoadConfig() (Config, error) {
	cfg := Config{
		ServiceName:       envDefault("SERVICE_NAME", "commerce-api"),
		HTTPAddr:          envDefault("HTTP_ADDR", ":8080"),
		PostgresDSN:       strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		KafkaBrokers:      kafka.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		InventoryBaseURL:  strings.TrimSpace(os.Getenv("INVENTORY_BASE_URL")),
		PromotionBaseURL:  strings.TrimSpace(os.Getenv("PROMOTION_BASE_URL")),
		WorkflowsEnabled:  isTruthy(os.Getenv("ORDER_WORKFLOWS_ENABLED")),
		TemporalAddress:   envDefault("TEMPORAL_ADDRESS", client.DefaultHostPort),
		TemporalNamespace: envDefault("TEMPORAL_NAMESPACE", client.DefaultNamespace),
		TemporalTaskQueue: envDefault("TEMPORAL_TASK_QUEUE", orderworkflows.OrderCreationTaskQueue),
	}
	if (cfg.InventoryBaseURL == "") != (cfg.PromotionBaseURL == "") {
		return Config{}, errors.New("INVENTORY_BASE_URL and PROMOTION_BASE_URL must be set together")
	}
	var err error
	if cfg.OutboxPollInterval, err = consumers.DurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.ConsumerMaxAttempts, err = consumers.PositiveIntEnv("CONSUMER_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ExternalCatalog reports whether inventory and promotions are remote services.
func (c Config) ExternalCatalog() bool {
	return c.InventoryBaseURL != ""
}

func envDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func isTruthy(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes"
}

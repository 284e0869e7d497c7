package consumers

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus/kafka"
)

// Config carries environment-driven settings for the consumers process.
type Config struct {
	ServiceName        string
	HTTPAddr           string
	PostgresDSN        string
	KafkaBrokers       []string
	RedisAddr          string
	OutboxPollInterval time.Duration
	MaxAttempts        int
}

// LoadConfig reads environment variables, applies defaults, and validates basic constraints.
func LoadConfig() (Config, error) {
	cfg := Config{
		ServiceName:  envDefault("SERVICE_NAME", "commerce-consumers"),
		HTTPAddr:     envDefault("HTTP_ADDR", ":8081"),
		PostgresDSN:  strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		KafkaBrokers: kafka.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		RedisAddr:    strings.TrimSpace(os.Getenv("REDIS_ADDR")),
	}
	var err error
	if cfg.OutboxPollInterval, err = DurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.MaxAttempts, err = PositiveIntEnv("CONSUMER_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DurationEnv parses a positive Go duration such as "500ms".
func DurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", key)
	}
	return d, nil
}

// PositiveIntEnv parses a positive integer.
func PositiveIntEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func envDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

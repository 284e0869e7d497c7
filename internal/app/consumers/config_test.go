package consumers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVICE_NAME", "HTTP_ADDR", "POSTGRES_DSN", "KAFKA_BROKERS", "REDIS_ADDR", "OUTBOX_POLL_INTERVAL", "CONSUMER_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
	}
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "commerce-consumers", cfg.ServiceName)
	require.Equal(t, ":8081", cfg.HTTPAddr)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, 3, cfg.MaxAttempts)
}

func TestLoadConfig_ParsesOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("OUTBOX_POLL_INTERVAL", "2s")
	t.Setenv("CONSUMER_MAX_ATTEMPTS", "5")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, 5, cfg.MaxAttempts)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	t.Setenv("CONSUMER_MAX_ATTEMPTS", "zero")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("CONSUMER_MAX_ATTEMPTS", "")
	t.Setenv("OUTBOX_POLL_INTERVAL", "-1s")
	_, err = LoadConfig()
	require.Error(t, err)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("PENDING_ORDER_TTL", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP_PORT)
	assert.Equal(t, "INR", cfg.CURRENCY)
	assert.Equal(t, 30*time.Minute, cfg.PENDING_ORDER_TTL)
	assert.Equal(t, 10*time.Second, cfg.GATEWAY_TIMEOUT)
	assert.Nil(t, cfg.Brokers())
}

func TestLoadConfig_PostgresNeedsDSNAndSecrets(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DB_STRING", "")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("DB_STRING", "postgres://localhost/orders")
	t.Setenv("RAZORPAY_KEY_ID", "")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "razorpay")

	t.Setenv("RAZORPAY_KEY_ID", "rzp_test")
	t.Setenv("RAZORPAY_KEY_SECRET", "secret")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "whsec")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.STORAGE_DRIVER)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SWEEP_INTERVAL", "soon")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "SWEEP_INTERVAL")
}

func TestBrokers(t *testing.T) {
	cfg := &Config{KAFKA_BROKERS: "kafka-1:9092, kafka-2:9092,,"}
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers())
}

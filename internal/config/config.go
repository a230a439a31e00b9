package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	APP_ENV   string `env:"APP_ENV"`
	LOG_LEVEL string `env:"LOG_LEVEL"`
	HTTP_PORT string `env:"HTTP_PORT"`

	STORAGE_DRIVER string `env:"STORAGE_DRIVER"`
	DB_STRING      string `env:"DB_STRING"`

	KAFKA_BROKERS       string `env:"KAFKA_BROKERS"`
	KAFKA_TOPIC         string `env:"KAFKA_TOPIC"`
	KAFKA_WEBHOOK_TOPIC string `env:"KAFKA_WEBHOOK_TOPIC"`
	KAFKA_GROUP_ID      string `env:"KAFKA_GROUP_ID"`

	RAZORPAY_KEY_ID         string        `env:"RAZORPAY_KEY_ID"`
	RAZORPAY_KEY_SECRET     string        `env:"RAZORPAY_KEY_SECRET"`
	RAZORPAY_WEBHOOK_SECRET string        `env:"RAZORPAY_WEBHOOK_SECRET"`
	RAZORPAY_BASE_URL       string        `env:"RAZORPAY_BASE_URL"`
	GATEWAY_TIMEOUT         time.Duration `env:"GATEWAY_TIMEOUT"`
	CURRENCY                string        `env:"CURRENCY"`

	PENDING_ORDER_TTL time.Duration `env:"PENDING_ORDER_TTL"`
	SWEEP_INTERVAL    time.Duration `env:"SWEEP_INTERVAL"`

	ADMIN_API_KEY string `env:"ADMIN_API_KEY"`

	OTEL_EXPORTER_OTLP_ENDPOINT string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SERVICE_NAME                string `env:"SERVICE_NAME"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		APP_ENV:   getEnv("APP_ENV", "development"),
		LOG_LEVEL: getEnv("LOG_LEVEL", "info"),
		HTTP_PORT: getEnv("HTTP_PORT", "8080"),

		STORAGE_DRIVER: strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
		DB_STRING:      os.Getenv("DB_STRING"),

		KAFKA_BROKERS:       os.Getenv("KAFKA_BROKERS"),
		KAFKA_TOPIC:         getEnv("KAFKA_TOPIC", "orders.events"),
		KAFKA_WEBHOOK_TOPIC: os.Getenv("KAFKA_WEBHOOK_TOPIC"),
		KAFKA_GROUP_ID:      getEnv("KAFKA_GROUP_ID", "bookstore-orders"),

		RAZORPAY_KEY_ID:         os.Getenv("RAZORPAY_KEY_ID"),
		RAZORPAY_KEY_SECRET:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RAZORPAY_WEBHOOK_SECRET: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		RAZORPAY_BASE_URL:       getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
		CURRENCY:                getEnv("CURRENCY", "INR"),

		ADMIN_API_KEY: os.Getenv("ADMIN_API_KEY"),

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SERVICE_NAME:                getEnv("SERVICE_NAME", "bookstore-orders"),
	}

	var err error
	if cfg.GATEWAY_TIMEOUT, err = getDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PENDING_ORDER_TTL, err = getDuration("PENDING_ORDER_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SWEEP_INTERVAL, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.STORAGE_DRIVER {
	case DriverPostgres:
		if c.DB_STRING == "" {
			return errors.New("DB_STRING is required for the postgres driver")
		}
		if c.RAZORPAY_KEY_ID == "" || c.RAZORPAY_KEY_SECRET == "" || c.RAZORPAY_WEBHOOK_SECRET == "" {
			return errors.New("razorpay credentials not configured")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.STORAGE_DRIVER)
	}
	if c.SWEEP_INTERVAL <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) Brokers() []string {
	if strings.TrimSpace(c.KAFKA_BROKERS) == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(c.KAFKA_BROKERS, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

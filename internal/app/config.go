package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config описывает настройки запуска сервиса.
// Все значения читаются из окружения с префиксом SHOP_.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// PostgresDSN пустой — сервис работает на in-memory хранилищах.
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// KafkaBrokers пустой — события остаются в outbox, consumer не стартует.
	KafkaBrokers     string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID     string `envconfig:"KAFKA_GROUP_ID" default:"shop-service"`
	OrderEventsTopic string `envconfig:"ORDER_EVENTS_TOPIC" default:"shop.order.events"`
	StockAlertsTopic string `envconfig:"STOCK_ALERTS_TOPIC" default:"shop.stock.alerts"`
	PaymentTopic     string `envconfig:"PAYMENT_TOPIC" default:"shop.payment.events"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3"`

	IdempotencyCleanupInterval time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL" default:"10m"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig читает конфигурацию из переменных окружения.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("shop", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from environment: %w", err)
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"riskgate/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Storage       StorageConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
	Risk          RiskConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"riskgate"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

// HTTPConfig configures the risk API. An empty AuthSecret disables token checks.
type HTTPConfig struct {
	Port       int    `envconfig:"HTTP_PORT" default:"8080"`
	AuthSecret string `envconfig:"API_AUTH_SECRET"`
	AuthIssuer string `envconfig:"API_AUTH_ISSUER" default:"riskgate"`
}

// StorageConfig selects where profiles, limits, alerts and events live
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"memory"` // memory | postgres
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"riskgate"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"riskgate"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"risk"`
}

// RedisConfig points at the cache that holds price snapshots and alert cool-down keys
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig enables alert/event streaming, close commands and the trades.closed consumer
type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"riskgate"`
}

type TelegramConfig struct {
	BotToken   string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	OpsChatIDs []int64 `envconfig:"TELEGRAM_OPS_CHAT_IDS"`
	RatePerSec int     `envconfig:"TELEGRAM_RATE_PER_SEC" default:"20"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// RiskConfig holds the system-wide thresholds. Per-user thresholds live in risk profiles.
type RiskConfig struct {
	VolatilityCeiling        float64       `envconfig:"RISK_VOLATILITY_CEILING" default:"0.10"`
	HardStopFloor            float64       `envconfig:"RISK_HARD_STOP_FLOOR" default:"0.10"`
	CapitalReserve           float64       `envconfig:"RISK_CAPITAL_RESERVE" default:"0.05"`
	ExposureReduceThreshold  float64       `envconfig:"RISK_EXPOSURE_REDUCE_THRESHOLD" default:"0.70"`
	DailyLossWarnThreshold   float64       `envconfig:"RISK_DAILY_LOSS_WARN_THRESHOLD" default:"0.80"`
	AlertCooldown            time.Duration `envconfig:"RISK_ALERT_COOLDOWN" default:"5m"`
	PriceTimeout             time.Duration `envconfig:"RISK_PRICE_TIMEOUT" default:"2s"`
	PriceMaxAge              time.Duration `envconfig:"RISK_PRICE_MAX_AGE" default:"30s"`
	CloseRetries             int           `envconfig:"RISK_CLOSE_RETRIES" default:"3"`
	StoreRetries             int           `envconfig:"RISK_STORE_RETRIES" default:"3"`
	RegistryShards           int           `envconfig:"RISK_REGISTRY_SHARDS" default:"32"`
	MonitorConcurrency       int           `envconfig:"RISK_MONITOR_CONCURRENCY" default:"8"`
	NotificationDeliveryWait time.Duration `envconfig:"RISK_NOTIFICATION_TIMEOUT" default:"3s"`
}

// WorkerConfig contains intervals for the periodic risk tasks
type WorkerConfig struct {
	GeneralSweepInterval  time.Duration `envconfig:"WORKER_GENERAL_SWEEP_INTERVAL" default:"30s"`
	StopLossSweepInterval time.Duration `envconfig:"WORKER_STOP_LOSS_SWEEP_INTERVAL" default:"10s"`
	LimitRefreshInterval  time.Duration `envconfig:"WORKER_LIMIT_REFRESH_INTERVAL" default:"60s"`
	ResetSweepInterval    time.Duration `envconfig:"WORKER_RESET_SWEEP_INTERVAL" default:"1h"`
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Risk.RegistryShards <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "RISK_REGISTRY_SHARDS must be positive")
	}
	if c.Risk.VolatilityCeiling <= 0 || c.Risk.HardStopFloor <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "volatility ceiling and hard stop floor must be positive")
	}
	return nil
}

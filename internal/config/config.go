package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "STOREFRONT"

type Config struct {
	HTTP     HTTPConfig
	Backend  BackendConfig
	Delivery DeliveryConfig
	Tracking TrackingConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type BackendConfig struct {
	BaseURL string        `envconfig:"URL" default:"http://10.0.2.2:8000"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
	// Consecutive failures before the breaker opens.
	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
}

// DeliveryConfig parameterises delivery estimates.
type DeliveryConfig struct {
	RatePerKm           int64   `envconfig:"RATE_PER_KM" default:"4000"`
	AverageSpeedKmh     float64 `envconfig:"AVERAGE_SPEED_KMH" default:"40"`
	BaseHandlingMinutes int     `envconfig:"HANDLING_MINUTES" default:"30"`
	// Optional fixed device location; empty means unknown.
	Latitude  string `envconfig:"DEVICE_LATITUDE"`
	Longitude string `envconfig:"DEVICE_LONGITUDE"`
}

type TrackingConfig struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
}

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

type MongoConfig struct {
	URI      string `envconfig:"URI" default:"mongodb://localhost:27017"`
	Database string `envconfig:"DB_NAME" default:"storefront"`
}

type KafkaConfig struct {
	Brokers         []string `envconfig:"BROKERS" default:"localhost:9092"`
	StatusTopic     string   `envconfig:"STATUS_TOPIC" default:"order-status"`
	NavigationTopic string   `envconfig:"NAVIGATION_TOPIC" default:"navigation-intents"`
	ConsumerGroupID string   `envconfig:"GROUP_ID" default:"storefront-core"`
}

type LedgerConfig struct {
	Path string `envconfig:"FILE" default:"storefront.db"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// Load reads an optional .env file and then the environment. Variables are
// named STOREFRONT_<GROUP>_<FIELD>, e.g. STOREFRONT_DELIVERY_RATE_PER_KM.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

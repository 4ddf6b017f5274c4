package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

const configPathEnv = "PAYMENT_SAGA_CONFIG_PATH"

type SagaConfig struct {
	Env          string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer   `yaml:"http_server"`
	GRPCServer   `yaml:"grpc_server"`
	PaymentDB    `yaml:"payment_db"`
	LogConfig    `yaml:"log_config"`
	KafkaService `yaml:"kafka_service"`
	RedisCache   `yaml:"redis_cache"`
	Workflow     `yaml:"workflow"`
	Fees         `yaml:"fees"`
	Currency     `yaml:"currency"`
	RateImport   `yaml:"rate_import"`
	Callback     `yaml:"callback"`
	Faults       `yaml:"faults"`
}

type HTTPServer struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type GRPCServer struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"9090"`
}

type PaymentDB struct {
	// Driver is "postgres" or "memory".
	Driver         string `yaml:"driver" env:"PAYMENT_DB_DRIVER" env-default:"postgres"`
	Dsn            string `yaml:"dsn" env:"PAYMENT_DB_DSN"`
	MigrationsPath string `yaml:"migrations_path" env:"PAYMENT_DB_MIGRATIONS_PATH" env-default:"migrations"`
}

type LogConfig struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	LogOutput string `yaml:"log_output" env:"LOG_OUTPUT" env-default:"stdout"`
}

type KafkaService struct {
	Enabled       bool   `yaml:"enabled" env:"KAFKA_ENABLED"`
	Host          string `yaml:"host" env:"KAFKA_HOST" env-default:"localhost"`
	Port          string `yaml:"port" env:"KAFKA_PORT" env-default:"9092"`
	EventsTopic   string `yaml:"events_topic" env-default:"payment-events"`
	CommandsTopic string `yaml:"commands_topic" env-default:"payment-commands"`
	GroupID       string `yaml:"group_id" env-default:"payment-saga"`
}

func (k KafkaService) Brokers() []string {
	return []string{fmt.Sprintf("%s:%s", k.Host, k.Port)}
}

type RedisCache struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	RateTTL  time.Duration `yaml:"rate_ttl" env-default:"30s"`
}

type Workflow struct {
	MaxAttempts      int           `yaml:"max_attempts" env-default:"5"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" env-default:"200ms"`
	MaxBackoff       time.Duration `yaml:"max_backoff" env-default:"10s"`
	ActivityTimeout  time.Duration `yaml:"activity_timeout" env-default:"30s"`
	RecoverySchedule string        `yaml:"recovery_schedule" env-default:"@every 1m"`
}

type Fees struct {
	FundingFlat    string `yaml:"funding_flat" env-default:"1.00"`
	MintingFlat    string `yaml:"minting_flat" env-default:"0.50"`
	OfframpPercent string `yaml:"offramp_percent" env-default:"0.5"`
}

type Currency struct {
	Base   string `yaml:"base" env-default:"USD"`
	Bridge string `yaml:"bridge" env-default:"USDC"`
}

type RateImport struct {
	Path     string `yaml:"path" env:"RATE_IMPORT_PATH"`
	Schedule string `yaml:"schedule" env-default:"@every 15m"`
}

// Callback is the merchant URL that receives every payment outcome.
type Callback struct {
	URL     string        `yaml:"url" env:"CALLBACK_URL"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
}

// Faults is a test-only switchboard for simulated leg failures.
// It is ignored outside the local and test environments.
type Faults struct {
	FailMinting bool `yaml:"fail_minting"`
}

type FeeSchedule struct {
	FundingFlat    decimal.Decimal
	MintingFlat    decimal.Decimal
	OfframpPercent decimal.Decimal
}

func (f Fees) Schedule() (FeeSchedule, error) {
	funding, err := decimal.NewFromString(f.FundingFlat)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("fees.funding_flat: %w", err)
	}
	minting, err := decimal.NewFromString(f.MintingFlat)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("fees.minting_flat: %w", err)
	}
	percent, err := decimal.NewFromString(f.OfframpPercent)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("fees.offramp_percent: %w", err)
	}
	if funding.IsNegative() || minting.IsNegative() || percent.IsNegative() {
		return FeeSchedule{}, fmt.Errorf("fees must not be negative")
	}
	return FeeSchedule{FundingFlat: funding, MintingFlat: minting, OfframpPercent: percent}, nil
}

// FaultsEnabled reports whether simulated failures may be honored.
func (c *SagaConfig) FaultsEnabled() bool {
	return c.Env == "local" || c.Env == "test"
}

// Load reads the YAML file at path, overlaying environment variables.
func Load(path string) (*SagaConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	var cfg SagaConfig
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if cfg.PaymentDB.Driver == "postgres" && cfg.PaymentDB.Dsn == "" {
		return nil, fmt.Errorf("payment_db.dsn is required for the postgres driver")
	}
	if cfg.PaymentDB.Driver != "postgres" && cfg.PaymentDB.Driver != "memory" {
		return nil, fmt.Errorf("unknown payment_db.driver %q", cfg.PaymentDB.Driver)
	}
	if _, err := cfg.Fees.Schedule(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *SagaConfig {
	configPath := os.Getenv(configPathEnv)
	if configPath == "" {
		log.Fatalf("%s was not found\n", configPathEnv)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	return cfg
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env       string    `yaml:"env" env:"ENV" env-default:"local"`
	Service   string    `yaml:"service" env:"SERVICE_NAME" env-default:"orders-service"`
	HTTP      HTTP      `yaml:"http"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Inventory Upstream  `yaml:"inventory" env-prefix:"INVENTORY_"`
	Invoice   Upstream  `yaml:"invoice" env-prefix:"INVOICE_"`
	Outbox    Outbox    `yaml:"outbox"`
	VNPay     VNPay     `yaml:"vnpay"`
	Kafka     Kafka     `yaml:"kafka"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// Postgres leaves URL empty to run on the in-memory stores.
type Postgres struct {
	URL      string `yaml:"url" env:"DB_URL"`
	MaxConns int32  `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	MinConns int32  `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"1"`
	Migrate  bool   `yaml:"migrate" env:"DB_MIGRATE" env-default:"true"`
}

type Redis struct {
	Addr        string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password    string `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	SequenceKey string `yaml:"sequence_key" env:"REDIS_SEQUENCE_KEY" env-default:"SEQUENCE"`
}

// Upstream is a downstream HTTP service. An empty BaseURL points the client
// at this process, which hosts the service itself.
type Upstream struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"3s"`
}

type Outbox struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"OUTBOX_POLL_INTERVAL" env-default:"500ms"`
	BatchSize    int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	MaxAttempts  int           `yaml:"max_attempts" env:"OUTBOX_MAX_ATTEMPTS" env-default:"10"`
	Lease        time.Duration `yaml:"lease" env:"OUTBOX_LEASE" env-default:"30s"`
	BaseBackoff  time.Duration `yaml:"base_backoff" env:"OUTBOX_BASE_BACKOFF" env-default:"1s"`
	MaxBackoff   time.Duration `yaml:"max_backoff" env:"OUTBOX_MAX_BACKOFF" env-default:"5m"`
}

type VNPay struct {
	TmnCode   string `yaml:"tmn_code" env:"VNPAY_TMN_CODE"`
	Secret    string `yaml:"secret" env:"VNPAY_SECRET"`
	PayURL    string `yaml:"pay_url" env:"VNPAY_PAY_URL" env-default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL string `yaml:"return_url" env:"VNPAY_RETURN_URL" env-default:"http://localhost:8080/api/payments/vnpay/return"`
	Version   string `yaml:"version" env:"VNPAY_VERSION" env-default:"2.1.0"`
	Command   string `yaml:"command" env:"VNPAY_COMMAND" env-default:"pay"`
	CurrCode  string `yaml:"curr_code" env:"VNPAY_CURR_CODE" env-default:"VND"`
	Locale    string `yaml:"locale" env:"VNPAY_LOCALE" env-default:"vn"`
	OrderType string `yaml:"order_type" env:"VNPAY_ORDER_TYPE" env-default:"other"`
	HashCase  string `yaml:"hash_case" env:"VNPAY_HASH_CASE" env-default:"upper"`
	Spaces    string `yaml:"spaces" env:"VNPAY_SPACES" env-default:"percent"`
}

// Kafka is disabled while Brokers is empty.
type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"order-lifecycle"`
}

type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File  string `yaml:"file" env:"LOG_FILE"`
}

// Load reads a local .env when present, then the YAML file named by
// CONFIG_PATH if set, with environment variables overriding both.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Outbox.BatchSize <= 0 {
		return errors.New("config: outbox.batch_size must be positive")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return errors.New("config: outbox.max_attempts must be positive")
	}
	switch strings.ToLower(c.VNPay.HashCase) {
	case "upper", "lower":
	default:
		return fmt.Errorf("config: vnpay.hash_case must be upper or lower, got %q", c.VNPay.HashCase)
	}
	switch strings.ToLower(c.VNPay.Spaces) {
	case "percent", "plus":
	default:
		return fmt.Errorf("config: vnpay.spaces must be percent or plus, got %q", c.VNPay.Spaces)
	}
	return nil
}

// Production reports whether the service runs with production defaults.
func (c *Config) Production() bool {
	return c.Env == "prod" || c.Env == "production"
}

// MemoryStores reports whether persistence falls back to in-process maps.
func (c *Config) MemoryStores() bool {
	return strings.TrimSpace(c.Postgres.URL) == ""
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	PayHere      PayHereConfig
	Auth         AuthConfig
	Email        EmailConfig
	Notification NotificationConfig
	LogLevel     string `envconfig:"LOG_LEVEL" default:"INFO"`
}

type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8084"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

type DatabaseConfig struct {
	DSN            string        `envconfig:"POSTGRES_DSN"`
	MaxOpenConns   int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns   int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	MaxLifetime    time.Duration `envconfig:"DB_MAX_LIFETIME" default:"5m"`
	MigrationsPath string        `envconfig:"MIGRATIONS_PATH" default:"migrations"`
}

type RedisConfig struct {
	Addr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password   string        `envconfig:"REDIS_PASSWORD"`
	DB         int           `envconfig:"REDIS_DB" default:"0"`
	PendingTTL time.Duration `envconfig:"PENDING_ORDER_TTL" default:"30m"`
	LockTTL    time.Duration `envconfig:"WEBHOOK_LOCK_TTL" default:"30s"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"storefront-notifier"`
}

type PayHereConfig struct {
	MerchantID     string `envconfig:"PAYHERE_MERCHANT_ID"`
	MerchantSecret string `envconfig:"PAYHERE_MERCHANT_SECRET"`
	Currency       string `envconfig:"PAYHERE_CURRENCY" default:"LKR"`
	ReturnURL      string `envconfig:"PAYHERE_RETURN_URL"`
	CancelURL      string `envconfig:"PAYHERE_CANCEL_URL"`
	NotifyURL      string `envconfig:"PAYHERE_NOTIFY_URL"`
	Sandbox        bool   `envconfig:"PAYHERE_SANDBOX" default:"true"`
}

// Enabled reports whether online payments can be offered.
func (p PayHereConfig) Enabled() bool {
	return p.MerchantID != "" && p.MerchantSecret != ""
}

type AuthConfig struct {
	OIDCIssuer string `envconfig:"OIDC_ISSUER"`
	JWTSecret  string `envconfig:"JWT_SECRET"`
	AdminRole  string `envconfig:"ADMIN_ROLE" default:"admin"`
}

type EmailConfig struct {
	SMTPHost      string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort      string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername  string `envconfig:"SMTP_USERNAME"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	From          string `envconfig:"EMAIL_FROM" default:"orders@storefront.local"`
	MerchantEmail string `envconfig:"MERCHANT_EMAIL"`
	OperatorEmail string `envconfig:"OPERATOR_EMAIL"`
	StoreName     string `envconfig:"STORE_NAME" default:"Storefront"`
	StoreBaseURL  string `envconfig:"STORE_BASE_URL" default:"http://localhost:3000"`
}

type NotificationConfig struct {
	BufferSize     int           `envconfig:"NOTIFY_BUFFER_SIZE" default:"256"`
	MaxAttempts    int           `envconfig:"NOTIFY_MAX_ATTEMPTS" default:"5"`
	PublishTimeout time.Duration `envconfig:"NOTIFY_PUBLISH_TIMEOUT" default:"15s"`
}

// Load reads an optional .env file and decodes the environment into Config.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if (c.PayHere.MerchantID == "") != (c.PayHere.MerchantSecret == "") {
		return errors.New("PAYHERE_MERCHANT_ID and PAYHERE_MERCHANT_SECRET must be set together")
	}
	if c.PayHere.Enabled() && c.PayHere.NotifyURL == "" {
		return errors.New("PAYHERE_NOTIFY_URL is required when PayHere is enabled")
	}
	if c.Notification.BufferSize < 1 {
		return fmt.Errorf("NOTIFY_BUFFER_SIZE must be positive, got %d", c.Notification.BufferSize)
	}
	if c.Notification.MaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive, got %d", c.Notification.MaxAttempts)
	}
	if c.Notification.PublishTimeout <= 0 {
		return fmt.Errorf("NOTIFY_PUBLISH_TIMEOUT must be positive, got %s", c.Notification.PublishTimeout)
	}
	c.PayHere.Currency = strings.ToUpper(c.PayHere.Currency)
	return nil
}

package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	PostgresDSN  string `env:"POSTGRES_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=marketplace sslmode=disable"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	JWTSecret    string `env:"JWT_SECRET,required,notEmpty"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	Kafka    KafkaConfig
	Stripe   StripeConfig
	Paypal   PaypalConfig
	Payments PaymentsConfig
}

type KafkaConfig struct {
	Brokers            []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	JobsTopic          string   `env:"KAFKA_JOBS_TOPIC" envDefault:"transaction-jobs"`
	DeadLetterTopic    string   `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:"transaction-jobs-dlq"`
	NotificationsTopic string   `env:"KAFKA_NOTIFICATIONS_TOPIC" envDefault:"transaction-notifications"`
	ConsumerGroup      string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"marketplace-tx"`
}

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	BaseURL       string `env:"STRIPE_BASE_URL"`
}

type PaypalConfig struct {
	ClientID  string `env:"PAYPAL_CLIENT_ID"`
	Secret    string `env:"PAYPAL_SECRET"`
	Mode      string `env:"PAYPAL_MODE" envDefault:"sandbox"`
	WebhookID string `env:"PAYPAL_WEBHOOK_ID"`
	ReturnURL string `env:"PAYPAL_RETURN_URL"`
	CancelURL string `env:"PAYPAL_CANCEL_URL"`
}

type PaymentsConfig struct {
	GatewayTimeout     time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"30s"`
	LockTTL            time.Duration `env:"LOCK_TTL" envDefault:"60s"`
	LockWait           time.Duration `env:"LOCK_WAIT" envDefault:"10s"`
	TokenRetention     time.Duration `env:"PROCESS_TOKEN_RETENTION" envDefault:"24h"`
	WebhookDedupTTL    time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"72h"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"24h"`
	BookingHorizonDays int           `env:"BOOKING_HORIZON_DAYS" envDefault:"365"`
	StripeHorizonDays  int           `env:"STRIPE_BOOKING_HORIZON_DAYS" envDefault:"86"`
	PayoutDelayDays    int           `env:"STRIPE_PAYOUT_DELAY_DAYS" envDefault:"7"`
	// DelayedPayoutModes lists the Stripe charges modes whose payouts wait
	// for the funds to settle.
	DelayedPayoutModes []models.ChargesMode `env:"DELAYED_PAYOUT_MODES" envSeparator:"," envDefault:"separate"`
	AutoCompleteDays   int                  `env:"AUTO_COMPLETE_DAYS" envDefault:"14"`
	JobMaxAttempts     int                  `env:"JOB_MAX_ATTEMPTS" envDefault:"5"`
	SchedulerInterval  time.Duration        `env:"SCHEDULER_INTERVAL" envDefault:"10s"`
}

// Load reads .env when present and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using environment", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return nil, err
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.Kafka.Brokers,
		"stripe_enabled", cfg.Stripe.SecretKey != "",
		"paypal_enabled", cfg.Paypal.ClientID != "")
	return &cfg, nil
}

func (c *Config) validate() error {
	for _, mode := range c.Payments.DelayedPayoutModes {
		switch mode {
		case models.ChargesModeDestination, models.ChargesModeSeparate:
		default:
			return fmt.Errorf("invalid charges mode %q in DELAYED_PAYOUT_MODES", mode)
		}
	}
	if c.Payments.BookingHorizonDays <= 0 || c.Payments.StripeHorizonDays <= 0 {
		return fmt.Errorf("booking horizons must be positive")
	}
	if c.Payments.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.Paypal.ClientID != "" && c.Paypal.Secret == "" {
		return fmt.Errorf("PAYPAL_SECRET is required with PAYPAL_CLIENT_ID")
	}
	return nil
}

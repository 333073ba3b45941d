package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the cart service.
type Config struct {
	Env  string
	Port string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string

	UserServiceURL    string
	ProductServiceURL string
	OrderServiceURL   string
	LookupTimeout     time.Duration
	LookupConcurrency int

	AbandonAfter              time.Duration
	AbandonSweepInterval      time.Duration
	NotificationSweepInterval time.Duration
	SweepLeaseTTL             time.Duration
	CartLoginURL              string
	NotificationQueueURL      string

	CheckoutCleanupTimeout time.Duration
	MutationRetries        int
	IdempotencyTTL         time.Duration

	// EventBus selects the cart event transport: sns, kafka or none.
	EventBus           string
	CartEventsTopicARN string
	KafkaBrokers       string
	KafkaTopic         string

	CloudWatchEnabled bool
	RateLimitRPS      float64
	RateLimitBurst    int
}

// Load reads configuration from the environment (and an optional .env file),
// with DB credentials optionally overridden from Secrets Manager.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8086"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		RedisURL: os.Getenv("REDIS_URL"),

		UserServiceURL:    getEnv("USER_SERVICE_URL", "http://user-service:8081"),
		ProductServiceURL: getEnv("PRODUCT_SERVICE_URL", "http://product-service:8082"),
		OrderServiceURL:   getEnv("ORDER_SERVICE_URL", "http://order-service:8083"),
		LookupTimeout:     getDuration("LOOKUP_TIMEOUT", 5*time.Second),
		LookupConcurrency: getInt("LOOKUP_CONCURRENCY", 0),

		AbandonAfter:              getDuration("CART_ABANDON_AFTER", 30*time.Minute),
		AbandonSweepInterval:      getDuration("ABANDON_SWEEP_INTERVAL", 5*time.Minute),
		NotificationSweepInterval: getDuration("NOTIFICATION_SWEEP_INTERVAL", 15*time.Minute),
		SweepLeaseTTL:             getDuration("SWEEP_LEASE_TTL", time.Minute),
		CartLoginURL:              getEnv("CART_LOGIN_URL", "http://localhost:3000/login"),
		NotificationQueueURL:      os.Getenv("NOTIFICATION_QUEUE_URL"),

		CheckoutCleanupTimeout: getDuration("CHECKOUT_CLEANUP_TIMEOUT", 10*time.Second),
		MutationRetries:        getInt("MUTATION_RETRIES", 3),
		IdempotencyTTL:         getDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		EventBus:           getEnv("EVENT_BUS", "none"),
		CartEventsTopicARN: os.Getenv("CART_EVENTS_TOPIC_ARN"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "cart.events"),

		CloudWatchEnabled: os.Getenv("CLOUDWATCH_ENABLED") == "true",
		RateLimitRPS:      getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:    getInt("RATE_LIMIT_BURST", 40),
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			applyDBSecret(context.Background(), cfg, awspkg.NewSecretsClient(awsCfg, 10*time.Minute))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDBSecret overrides the Postgres settings with any non-empty values
// stored under cart/DB_CREDENTIALS.
func applyDBSecret(ctx context.Context, cfg *Config, sm awspkg.SecretGetter) {
	m, err := awspkg.SecretMap(ctx, sm, "cart/DB_CREDENTIALS")
	if err != nil {
		return
	}
	for key, dst := range map[string]*string{
		"POSTGRES_USER":     &cfg.PostgresUser,
		"POSTGRES_PASSWORD": &cfg.PostgresPassword,
		"POSTGRES_DB":       &cfg.PostgresDB,
		"POSTGRES_HOST":     &cfg.PostgresHost,
		"POSTGRES_PORT":     &cfg.PostgresPort,
	} {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
}

// Validate checks that required settings are present and sane.
func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.UserServiceURL == "" || c.ProductServiceURL == "" || c.OrderServiceURL == "" {
		return fmt.Errorf("USER_SERVICE_URL, PRODUCT_SERVICE_URL and ORDER_SERVICE_URL are required")
	}
	if c.AbandonAfter <= 0 {
		return fmt.Errorf("CART_ABANDON_AFTER must be positive")
	}
	if c.LookupConcurrency < 0 {
		return fmt.Errorf("LOOKUP_CONCURRENCY must not be negative")
	}
	if c.MutationRetries < 1 {
		return fmt.Errorf("MUTATION_RETRIES must be at least 1")
	}
	switch c.EventBus {
	case "sns":
		if c.CartEventsTopicARN == "" {
			return fmt.Errorf("CART_EVENTS_TOPIC_ARN is required when EVENT_BUS=sns")
		}
	case "kafka", "none":
	default:
		return fmt.Errorf("unknown EVENT_BUS %q", c.EventBus)
	}
	return nil
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

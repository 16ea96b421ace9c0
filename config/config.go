package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageMinio = "minio"
	StorageGCS   = "gcs"
	StorageS3    = "s3"

	MQRabbitMQ = "rabbitmq"
	MQPubSub   = "pubsub"

	CookieDomainLastTwoLabels = "last-two-labels"
	CookieDomainPublicSuffix  = "public-suffix"
)

type Config struct {
	Env        string `env:"ENV" envDefault:"production"`
	ServerPort int    `env:"SERVER_PORT"`

	Database  DatabaseConfig
	Auth      AuthConfig
	HTTP      HTTPConfig
	Turnstile TurnstileConfig
	Storage   StorageConfig
	MQ        MQConfig
	Sentry    SentryConfig
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"sso"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"sso_db"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

type HTTPConfig struct {
	FrontendURL          string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	AllowedOrigins       []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3001,http://localhost:5173"`
	AllowedRedirects     []string      `env:"ALLOWED_REDIRECTS" envSeparator:"," envDefault:"https://mategroup.id"`
	CookieDomainStrategy string        `env:"COOKIE_DOMAIN_STRATEGY" envDefault:"last-two-labels"`
	RateLimitRequests    int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
}

type TurnstileConfig struct {
	SecretKey string `env:"TURNSTILE_SECRET_KEY"`
	VerifyURL string `env:"TURNSTILE_VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
}

type StorageConfig struct {
	Backend       string `env:"STORAGE_BACKEND" envDefault:"minio"`
	Bucket        string `env:"STORAGE_BUCKET" envDefault:"mategroup-profiles"`
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL"`
	Minio         MinioConfig
	GCS           GCSConfig
	S3            S3Config
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

// S3Config targets any S3-compatible endpoint, Supabase Storage included.
type S3Config struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
}

type MQConfig struct {
	Backend  string `env:"MQ_BACKEND"`
	Channel  string `env:"ACCOUNT_EVENTS_CHANNEL" envDefault:"sso.account-events"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type SentryConfig struct {
	DSN         string `env:"SENTRY_DSN"`
	Environment string `env:"SENTRY_ENVIRONMENT"`
}

// LoadConfig reads the process environment. In dev a .env file is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ServerPort == 0 {
		cfg.ServerPort = getEnvInt("PORT", 8080)
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Env
	}
	if cfg.HTTP.FrontendURL != "" && !contains(cfg.HTTP.AllowedOrigins, cfg.HTTP.FrontendURL) {
		cfg.HTTP.AllowedOrigins = append(cfg.HTTP.AllowedOrigins, cfg.HTTP.FrontendURL)
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent required setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if strings.TrimSpace(c.Database.URL) == "" && strings.TrimSpace(c.Database.Host) == "" {
		return errors.New("DATABASE_URL or DB_HOST is required")
	}
	switch c.HTTP.CookieDomainStrategy {
	case CookieDomainLastTwoLabels, CookieDomainPublicSuffix:
	default:
		return fmt.Errorf("unknown COOKIE_DOMAIN_STRATEGY %q", c.HTTP.CookieDomainStrategy)
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("STORAGE_BUCKET is required")
	}
	switch c.Storage.Backend {
	case StorageMinio:
		if c.Storage.Minio.AccessKey == "" || c.Storage.Minio.SecretKey == "" {
			return errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
		}
	case StorageGCS:
	case StorageS3:
		if c.Storage.S3.Endpoint == "" {
			return errors.New("S3_ENDPOINT is required")
		}
		if c.Storage.PublicBaseURL == "" {
			return errors.New("STORAGE_PUBLIC_BASE_URL is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.MQ.Backend {
	case "", MQRabbitMQ, MQPubSub:
	default:
		return fmt.Errorf("unknown MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
}

// IsProduction reports whether cookies should be marked Secure.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN returns DATABASE_URL when set, otherwise a postgres URL built from the DB_* parts.
func (c DatabaseConfig) DSN() string {
	if strings.TrimSpace(c.URL) != "" {
		return c.URL
	}

	sslmode := "disable"
	if c.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		User:   url.UserPassword(c.User, c.Password),
		Path:   c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		if value != 0 {
			return value
		}
	}
	return defaultValue
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

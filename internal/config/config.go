package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the service configuration, read from the environment by envconfig.
// Variables tagged required:"true" must be set.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"` // development, staging, production
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`      // debug, info, warn, error
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Auth       AuthConfig
	Listing    ListingConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
	MaxUploadMB  int64         `envconfig:"HTTP_SERVER_MAX_UPLOAD_MB" default:"10"`
}

// GrpcServerConfig configures the gRPC listener.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig describes the PostgreSQL connection and pool size.
type PostgresConfig struct {
	Host         string `envconfig:"POSTGRES_HOST" required:"true"`
	Port         string `envconfig:"POSTGRES_PORT" default:"5432"`
	User         string `envconfig:"POSTGRES_USER" required:"true"`
	Password     string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	DBName       string `envconfig:"POSTGRES_DBNAME" required:"true"`
	SSLMode      string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns int    `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5"`
}

// DSN renders the lib/pq connection string.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// RedisConfig holds the field definition cache settings. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:""`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	Prefix   string        `envconfig:"REDIS_PREFIX" default:"marketplace:"`
	TTL      time.Duration `envconfig:"REDIS_TTL" default:"5m"`
}

// NATSConfig holds the object storage settings used for product photos.
type NATSConfig struct {
	URL             string  `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	TempBucket      string  `envconfig:"NATS_TEMP_BUCKET" default:"uploads-temp"`
	PublicBucket    string  `envconfig:"NATS_PUBLIC_BUCKET" default:"uploads-public"`
	TempURLPrefix   string  `envconfig:"NATS_TEMP_URL_PREFIX" default:"http://localhost:8080/files/temp/"`
	PublicURLPrefix string  `envconfig:"NATS_PUBLIC_URL_PREFIX" default:"http://localhost:8080/files/public/"`
	MovesPerSecond  float64 `envconfig:"NATS_MOVES_PER_SECOND" default:"20"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
	AdminRole string `envconfig:"AUTH_ADMIN_ROLE" default:"admin"`
}

// ListingConfig tunes the product listing pipeline.
type ListingConfig struct {
	DefaultLimit     int `envconfig:"LISTING_DEFAULT_LIMIT" default:"20"`
	MaxLimit         int `envconfig:"LISTING_MAX_LIMIT" default:"100"`
	HydrationWorkers int `envconfig:"LISTING_HYDRATION_WORKERS" default:"8"`
	FilterWorkers    int `envconfig:"LISTING_FILTER_WORKERS" default:"4"`
}

// Load reads and checks the configuration. Call it once at startup.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if cfg.Listing.DefaultLimit <= 0 || cfg.Listing.MaxLimit < cfg.Listing.DefaultLimit {
		return nil, fmt.Errorf("invalid listing limits: default=%d max=%d", cfg.Listing.DefaultLimit, cfg.Listing.MaxLimit)
	}
	if cfg.Listing.HydrationWorkers <= 0 || cfg.Listing.FilterWorkers <= 0 {
		return nil, fmt.Errorf("listing worker counts must be positive")
	}
	slog.Info("Configuration loaded", "app_env", cfg.AppEnv)
	return &cfg, nil
}

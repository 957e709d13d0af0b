package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Voting   VotingConfig
	AWS      AWSConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL            string // if set, used as-is (e.g. postgres://localhost:5432/refpoll?sslmode=disable)
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConns       int
	ConnectTimeout int
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// results cache and the export queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// VotingConfig holds poll and ballot settings.
type VotingConfig struct {
	StoreTimeoutSec    int
	ResultsCacheTTLSec int
	TokenBytes         int
	FrontendURL        string // base of share links: {FrontendURL}/vote/{token}
}

// AWSConfig holds AWS credentials and the results export bucket. An empty
// ResultsBucket disables exports.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ResultsBucket   string
	S3Endpoint      string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// StoreTimeout returns the per-operation storage bound.
func (c VotingConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSec) * time.Second
}

// maxResultsCacheTTLSec keeps cached results well inside the 24h lifetime
// of the results generation counter.
const maxResultsCacheTTLSec = 3600

// ResultsCacheTTL returns how long cached results live.
func (c VotingConfig) ResultsCacheTTL() time.Duration {
	return time.Duration(c.ResultsCacheTTLSec) * time.Second
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "refpoll"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       getEnvInt("DB_MAX_CONNS", 0),
			ConnectTimeout: getEnvInt("DB_CONNECT_TIMEOUT_SEC", 5),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Voting: VotingConfig{
			StoreTimeoutSec:    getEnvInt("STORE_TIMEOUT_SEC", 5),
			ResultsCacheTTLSec: getEnvInt("RESULTS_CACHE_TTL_SEC", 30),
			TokenBytes:         getEnvInt("POLL_TOKEN_BYTES", 24),
			FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ResultsBucket:   getEnv("AWS_S3_RESULTS_BUCKET", ""),
			S3Endpoint:      getEnv("AWS_S3_ENDPOINT", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Voting.TokenBytes < 16 {
		return errors.Errorf("POLL_TOKEN_BYTES must be at least 16, got %d", c.Voting.TokenBytes)
	}
	if c.Voting.StoreTimeoutSec <= 0 {
		return errors.Errorf("STORE_TIMEOUT_SEC must be positive, got %d", c.Voting.StoreTimeoutSec)
	}
	if c.Voting.ResultsCacheTTLSec <= 0 || c.Voting.ResultsCacheTTLSec > maxResultsCacheTTLSec {
		return errors.Errorf("RESULTS_CACHE_TTL_SEC must be between 1 and %d, got %d", maxResultsCacheTTLSec, c.Voting.ResultsCacheTTLSec)
	}
	if c.JWT.ExpireHours <= 0 {
		return errors.Errorf("JWT_EXPIRE_HOURS must be positive, got %d", c.JWT.ExpireHours)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.Errorf("METRICS_PATH must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

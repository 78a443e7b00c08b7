package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Job store backends selectable via JOB_STORE.
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	APIBaseURL       string
	APIKey           string
	PollInterval     time.Duration
	MaxPollAttempts  int
	JobStore         string
	JobStorePath     string
	RedisURL         string
	DatabaseURL      string
	MetricsAddr      string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		APIBaseURL:       getEnv("BLITZ_API_BASE_URL", "https://api.blitzai.app"),
		APIKey:           os.Getenv("BLITZ_API_KEY"),
		PollInterval:     time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 3000)),
		MaxPollAttempts:  getEnvInt("MAX_POLL_ATTEMPTS", 0),
		JobStore:         getEnv("JOB_STORE", StoreFile),
		JobStorePath:     getEnv("JOB_STORE_PATH", "./blitz-jobs.json"),
		RedisURL:         os.Getenv("REDIS_URL"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if cfg.MaxPollAttempts < 0 {
		return nil, fmt.Errorf("MAX_POLL_ATTEMPTS must not be negative")
	}

	switch cfg.JobStore {
	case StoreFile:
		if cfg.JobStorePath == "" {
			return nil, fmt.Errorf("JOB_STORE_PATH is required for the file store")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis store")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE %q", cfg.JobStore)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

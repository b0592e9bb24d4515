package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	JWTSecretKey   string
	ServerPort     int

	SchedulerInterval    time.Duration
	SchedulerConcurrency int

	NATSURL           string
	NATSSubjectPrefix string

	CORSAllowedOrigins []string
	ReportRateLimit    float64
	ReportRateBurst    int

	LogLevel slog.Level
}

// Load reads the configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	// A missing .env file is fine outside local development
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDriver:    getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:       getEnv("DATABASE_URL", "tourney.db?_journal_mode=WAL"),
		JWTSecretKey:      os.Getenv("JWT_SECRET_KEY"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "tourney"),
	}

	if cfg.DatabaseDriver != "sqlite3" && cfg.DatabaseDriver != "postgres" {
		return nil, fmt.Errorf("DATABASE_DRIVER must be sqlite3 or postgres, got %q", cfg.DatabaseDriver)
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.ServerPort = port

	cfg.SchedulerInterval, err = time.ParseDuration(getEnv("SCHEDULER_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_INTERVAL environment variable: %w", err)
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", cfg.SchedulerInterval)
	}

	cfg.SchedulerConcurrency, err = strconv.Atoi(getEnv("SCHEDULER_CONCURRENCY", "4"))
	if err != nil || cfg.SchedulerConcurrency < 1 {
		return nil, fmt.Errorf("SCHEDULER_CONCURRENCY must be a positive integer")
	}

	cfg.ReportRateLimit, err = strconv.ParseFloat(getEnv("REPORT_RATE_LIMIT", "5"), 64)
	if err != nil || cfg.ReportRateLimit <= 0 {
		return nil, fmt.Errorf("REPORT_RATE_LIMIT must be a positive number")
	}

	cfg.ReportRateBurst, err = strconv.Atoi(getEnv("REPORT_RATE_BURST", "10"))
	if err != nil || cfg.ReportRateBurst < 1 {
		return nil, fmt.Errorf("REPORT_RATE_BURST must be a positive integer")
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
			}
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
	}

	return cfg, nil
}

// RequireJWT is checked by commands that serve the HTTP API.
func (c *Config) RequireJWT() error {
	if c.JWTSecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the client.
type Config struct {
	Env     string
	FeedURL string

	// Storage backend selection: RedisURL wins over DatabaseURL wins over
	// the embedded SQLite file at DBPath.
	DBPath      string
	DatabaseURL string
	RedisURL    string

	// Local read-only API for render-layer consumers.
	ListenAddr string

	PollInterval  time.Duration
	FetchTimeout  time.Duration
	SubmitTimeout time.Duration

	// ProcessedRetention > 0 enables pruning of processed-event markers
	// older than the window. Zero keeps them forever.
	ProcessedRetention time.Duration

	AdminPassword string

	// Login for the headless client.
	Username string
	Password string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                getEnv("PEYK_ENV", "development"),
		FeedURL:            os.Getenv("PEYK_FEED_URL"),
		DBPath:             getEnv("PEYK_DB_PATH", "./data/peyk.db"),
		DatabaseURL:        os.Getenv("PEYK_DATABASE_URL"),
		RedisURL:           os.Getenv("PEYK_REDIS_URL"),
		ListenAddr:         getEnv("PEYK_LISTEN_ADDR", "127.0.0.1:7420"),
		PollInterval:       getDuration("PEYK_POLL_INTERVAL", 3*time.Second),
		FetchTimeout:       getDuration("PEYK_FETCH_TIMEOUT", 5*time.Second),
		SubmitTimeout:      getDuration("PEYK_SUBMIT_TIMEOUT", 10*time.Second),
		ProcessedRetention: getDuration("PEYK_PROCESSED_RETENTION", 0),
		AdminPassword:      getEnv("PEYK_ADMIN_PASSWORD", "admin123"),
		Username:           os.Getenv("PEYK_USERNAME"),
		Password:           os.Getenv("PEYK_PASSWORD"),
	}

	if cfg.Env == "production" && cfg.FeedURL == "" {
		panic("PEYK_FEED_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// Package config loads runtime configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env      string // "development" or "production"
	Port     string
	LogLevel string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	OMDbAPIKey    string
	OMDbBaseURL   string
	OMDbTimeout   time.Duration
	OMDbRateLimit float64 // requests per second, 0 disables the limiter

	UploadDir      string
	MaxUploadBytes int64

	JWTSecret string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SearchCacheTTL time.Duration

	AMQPURL     string
	EventsQueue string

	CORSOrigins []string
}

// Load reads .env (if any) and the environment, applies defaults, and validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv is Load without the .env file.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:      env("APP_ENV", "development"),
		Port:     env("PORT", "5000"),
		LogLevel: strings.ToLower(env("LOG_LEVEL", "")),

		DBDriver:    strings.ToLower(env("DB_DRIVER", DriverSQLite)),
		DBPath:      env("DB_PATH", "data/movies.db"),
		DatabaseURL: env("DATABASE_URL", ""),

		OMDbAPIKey:    env("OMDB_API_KEY", ""),
		OMDbBaseURL:   env("OMDB_BASE_URL", "https://www.omdbapi.com/"),
		OMDbTimeout:   envDuration("OMDB_TIMEOUT", 10*time.Second),
		OMDbRateLimit: envFloat("OMDB_RATE_LIMIT", 5),

		UploadDir:      env("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 5<<20)),

		JWTSecret: env("JWT_SECRET", ""),

		RedisAddr:      env("REDIS_ADDR", ""),
		RedisPassword:  env("REDIS_PASSWORD", ""),
		RedisDB:        envInt("REDIS_DB", 0),
		SearchCacheTTL: envDuration("SEARCH_CACHE_TTL", 10*time.Minute),

		AMQPURL:     env("AMQP_URL", ""),
		EventsQueue: env("EVENTS_QUEUE", "movies.events"),

		CORSOrigins: splitList(env("CORS_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("config: DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DBDriver)
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// LookupEnabled reports whether an OMDb key is configured. Without one the
// server still starts and search answers upstream_unavailable.
func (c *Config) LookupEnabled() bool { return c.OMDbAPIKey != "" }

func (c *Config) CacheEnabled() bool  { return c.RedisAddr != "" }
func (c *Config) EventsEnabled() bool { return c.AMQPURL != "" }
func (c *Config) AuthEnabled() bool   { return c.JWTSecret != "" }

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("10s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

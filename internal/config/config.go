package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	AMQP struct {
		URL      string
		Exchange string
	}

	HTTP struct {
		Host string
		Port string
	}

	Match struct {
		// Grace period between session start and the first matching attempt,
		// so the client UI is ready before a pairing can appear.
		StartGrace time.Duration
		// Cadence of the redundant background sweep.
		SweepInterval time.Duration
		// How long an unresolved pairing lives before the system declines it.
		AutoResolveAfter time.Duration
		// Re-matching delays after a system decline vs. a manual decline.
		AutoDeclineCooldown   time.Duration
		ManualDeclineCooldown time.Duration
		// Lifetime of a session from activation.
		SessionTTL time.Duration
		// Declines of the same pair before the decline memory resets.
		DeclineThreshold int
		// Age after which a decline record stops excluding the pair. Decline
		// memory is bounded in time as well as in count.
		DeclineExpiry time.Duration
	}
}

// Load reads an optional .env file, then builds config from environment
// variables with sensible defaults.
func Load() *Config {
	_ = godotenv.Load()
	return New()
}

func New() *Config {
	cfg := &Config{}

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "spark_engine")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "spark")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}

	// RabbitMQ (empty URL means lifecycle events go to the no-op publisher)
	cfg.AMQP.URL = os.Getenv("AMQP_URL")
	cfg.AMQP.Exchange = getEnvDefault("AMQP_EXCHANGE", "spark_events")

	// HTTP
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")

	// Matching
	cfg.Match.StartGrace = getDurationDefault("MATCH_START_GRACE", 15*time.Second)
	cfg.Match.SweepInterval = getDurationDefault("MATCH_SWEEP_INTERVAL", 30*time.Second)
	cfg.Match.AutoResolveAfter = getDurationDefault("MATCH_AUTO_RESOLVE_AFTER", 5*time.Minute)
	cfg.Match.AutoDeclineCooldown = getDurationDefault("MATCH_AUTO_DECLINE_COOLDOWN", 5*time.Second)
	cfg.Match.ManualDeclineCooldown = getDurationDefault("MATCH_MANUAL_DECLINE_COOLDOWN", 30*time.Second)
	cfg.Match.SessionTTL = getDurationDefault("MATCH_SESSION_TTL", time.Hour)
	cfg.Match.DeclineThreshold = getIntDefault("MATCH_DECLINE_THRESHOLD", 3)
	cfg.Match.DeclineExpiry = getDurationDefault("MATCH_DECLINE_EXPIRY", 30*24*time.Hour)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDurationDefault(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getIntDefault(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// Package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by must() and
// missing ones stop the process at startup; the rest fall back to the
// defaults listed next to each field.
type Config struct {
	Env      string // APP_ENV (dev, test, prod)
	Port     string // APP_PORT
	LogLevel string // LOG_LEVEL, default "info"

	DBUser string // DB_USER
	DBPass string // DB_PASS (empty allowed)
	DBHost string // DB_HOST
	DBPort string // DB_PORT
	DBName string // DB_NAME

	JWTSecret string // JWT_SECRET, verifies user tokens

	BoxOffice BoxOffice
	Redis     Redis
	RabbitMQ  RabbitMQ
	Schedule  Schedule

	ResyncOnStartup bool // RESYNC_ON_STARTUP, default true
}

// BoxOffice configures the client of the external box office service.
type BoxOffice struct {
	BaseURL        string        // BOXOFFICE_URL
	Token          string        // BOXOFFICE_TOKEN, static bearer token
	ServiceSecret  string        // BOXOFFICE_SERVICE_SECRET, signs self-minted tokens when set
	ConnectTimeout time.Duration // BOXOFFICE_CONNECT_TIMEOUT, default 5s
	ReadTimeout    time.Duration // BOXOFFICE_READ_TIMEOUT, default 10s
}

// Redis points at the seat cache shared with the box office.
type Redis struct {
	Addr     string // REDIS_ADDR, or REDIS_HOST + REDIS_PORT; default localhost:6379
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
	TLS      bool   // REDIS_TLS
}

// RabbitMQ configures change-notification consumption and sale events.
type RabbitMQ struct {
	URL          string // RABBITMQ_URL; empty disables the consumer and publisher
	ChangesQueue string // EVENT_CHANGES_QUEUE, default "eventos"
	SalesQueue   string // SALE_EVENTS_QUEUE, default "sale.confirmed"
}

// Schedule configures the session lifetime and the periodic sweeps.
type Schedule struct {
	SessionTTL           time.Duration // SESSION_TTL, default 30m
	SessionSweepEvery    time.Duration // SESSION_SWEEP_EVERY, default 10m
	SaleRetryEvery       time.Duration // SALE_RETRY_EVERY, default 5m
	SaleRetryMaxAttempts int           // SALE_RETRY_MAX_ATTEMPTS, 0 means unbounded
	SaleRetryBackoff     time.Duration // SALE_RETRY_BACKOFF, 0 retries every cycle
	SaleRetryMaxBackoff  time.Duration // SALE_RETRY_MAX_BACKOFF, default 1h
	SaleRetryLease       time.Duration // SALE_RETRY_LEASE, default 1m, never shorter than a box office call
}

// Load reads a .env file when one exists and then builds the Config from
// the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("config: could not read .env file")
	}
	return Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret: must("JWT_SECRET"),

		BoxOffice: BoxOffice{
			BaseURL:        strings.TrimRight(must("BOXOFFICE_URL"), "/"),
			Token:          os.Getenv("BOXOFFICE_TOKEN"),
			ServiceSecret:  os.Getenv("BOXOFFICE_SERVICE_SECRET"),
			ConnectTimeout: envDur("BOXOFFICE_CONNECT_TIMEOUT", 5*time.Second),
			ReadTimeout:    envDur("BOXOFFICE_READ_TIMEOUT", 10*time.Second),
		},
		Redis: loadRedis(),
		RabbitMQ: RabbitMQ{
			URL:          os.Getenv("RABBITMQ_URL"),
			ChangesQueue: envStr("EVENT_CHANGES_QUEUE", "eventos"),
			SalesQueue:   envStr("SALE_EVENTS_QUEUE", "sale.confirmed"),
		},
		Schedule: Schedule{
			SessionTTL:           envDur("SESSION_TTL", 30*time.Minute),
			SessionSweepEvery:    envDur("SESSION_SWEEP_EVERY", 10*time.Minute),
			SaleRetryEvery:       envDur("SALE_RETRY_EVERY", 5*time.Minute),
			SaleRetryMaxAttempts: envInt("SALE_RETRY_MAX_ATTEMPTS", 0),
			SaleRetryBackoff:     envDur("SALE_RETRY_BACKOFF", 0),
			SaleRetryMaxBackoff:  envDur("SALE_RETRY_MAX_BACKOFF", time.Hour),
			SaleRetryLease:       envDur("SALE_RETRY_LEASE", time.Minute),
		},
		ResyncOnStartup: envBool("RESYNC_ON_STARTUP", true),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	log.Warn().Str("key", k).Str("value", v).Int("default", d).Msg("config: invalid int, using default")
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	log.Warn().Str("key", k).Str("value", v).Dur("default", d).Msg("config: invalid duration, using default")
	return d
}

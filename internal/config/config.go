package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// DefaultDatasetURL is the Seattle annual parking study export.
const DefaultDatasetURL = "https://data.seattle.gov/api/views/7jzm-ucez/rows.csv"

// Time-of-day matching modes for free-space probability.
const (
	MatchModeHour   = "hour"
	MatchModeWindow = "window"
)

// Config holds all application settings, populated from environment variables.
type Config struct {
	DatasetURL      string
	CachePath       string
	CacheEnabled    bool
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Remote dataset fetch. A zero FetchTimeout means no per-request timeout.
	FetchTimeout    time.Duration
	FetchMaxElapsed time.Duration

	// Query engine tuning.
	QueryCacheSize int
	MatchMode      string
	MatchWindow    time.Duration

	// Query audit sink.
	AuditEnabled    bool
	KafkaBrokers    []string
	KafkaAuditTopic string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first when present;
// variables already set in the environment take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "0s", true)
	if err != nil {
		return nil, err
	}
	fetchMaxElapsed, err := parseDuration("FETCH_MAX_ELAPSED", "2m", false)
	if err != nil {
		return nil, err
	}
	matchWindow, err := parseDuration("MATCH_WINDOW", "45m", false)
	if err != nil {
		return nil, err
	}

	queryCacheSize, err := parsePositiveInt("QUERY_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatasetURL:      sharedcfg.EnvOrDefault("DATASET_URL", DefaultDatasetURL),
		CachePath:       sharedcfg.EnvOrDefault("CACHE_PATH", "./resources/study.db"),
		CacheEnabled:    sharedcfg.EnvOrDefault("CACHE_ENABLED", "true") == "true",
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout: shutdownTimeout,

		FetchTimeout:    fetchTimeout,
		FetchMaxElapsed: fetchMaxElapsed,

		QueryCacheSize: queryCacheSize,
		MatchMode:      sharedcfg.EnvOrDefault("MATCH_MODE", MatchModeHour),
		MatchWindow:    matchWindow,

		AuditEnabled:    os.Getenv("AUDIT_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAuditTopic: sharedcfg.EnvOrDefault("KAFKA_AUDIT_TOPIC", "parking-query-audit"),
	}

	if cfg.DatasetURL == "" {
		return nil, errors.New("DATASET_URL is required")
	}
	if cfg.CacheEnabled && cfg.CachePath == "" {
		return nil, errors.New("CACHE_PATH is required when CACHE_ENABLED is true")
	}
	if cfg.MatchMode != MatchModeHour && cfg.MatchMode != MatchModeWindow {
		return nil, errors.New("invalid MATCH_MODE: want hour or window")
	}
	if cfg.AuditEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("AUDIT_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.AuditEnabled && cfg.KafkaAuditTopic == "" {
		return nil, errors.New("AUDIT_ENABLED is true but KAFKA_AUDIT_TOPIC is empty")
	}

	return cfg, nil
}

// parseDuration reads a duration variable. Zero is accepted only when allowZero is set.
func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

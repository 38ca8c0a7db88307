package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

const (
	minHTTPWriteTimeout = 60 * time.Second
	// coldReportMisses is how many sequential geocoder misses one report may absorb.
	coldReportMisses = 50
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	// HTTPWriteTimeout bounds a response. Unless HTTP_WRITE_TIMEOUT is set it
	// is derived from GeocoderTimeout, so a report rendered on a cold cache
	// is not cut off.
	HTTPWriteTimeout time.Duration

	// Storage. An empty DatabaseURL selects the in-memory store.
	DatabaseURL      string
	DatabaseMaxConns int32
	SeedFile         string

	// Yandex geocoder configuration.
	GeocoderAPIKey  string
	GeocoderEnabled bool
	GeocoderTimeout time.Duration
	GeocoderRPS     float64

	// WarmerInterval is the pause between address warm-up passes; zero disables the warmer.
	WarmerInterval time.Duration

	// Order event publishing.
	KafkaBrokers    []string
	KafkaOrderTopic string
	KafkaEnabled    bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	geocoderTimeout, err := parsePositiveDuration("GEOCODER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	warmerInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("WARMER_INTERVAL", "5m"))
	if err != nil || warmerInterval < 0 {
		return nil, errors.New("invalid WARMER_INTERVAL")
	}

	geocoderRPS, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("GEOCODER_RPS", "10"), 64)
	if err != nil || geocoderRPS < 0 {
		return nil, errors.New("invalid GEOCODER_RPS")
	}

	maxConns, err := strconv.ParseInt(sharedcfg.EnvOrDefault("DATABASE_MAX_CONNS", "10"), 10, 32)
	if err != nil || maxConns <= 0 {
		return nil, errors.New("invalid DATABASE_MAX_CONNS")
	}

	apiKey := os.Getenv("YANDEX_GEOCODER_API_KEY")
	geocoderEnabled := apiKey != ""
	if v := os.Getenv("GEOCODER_ENABLED"); v != "" {
		geocoderEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseMaxConns: int32(maxConns),
		SeedFile:         os.Getenv("SEED_FILE"),

		GeocoderAPIKey:  apiKey,
		GeocoderEnabled: geocoderEnabled,
		GeocoderTimeout: geocoderTimeout,
		GeocoderRPS:     geocoderRPS,

		WarmerInterval: warmerInterval,

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaOrderTopic: sharedcfg.EnvOrDefault("KAFKA_ORDER_TOPIC", "star-burger-orders"),
		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
	}

	cfg.HTTPWriteTimeout, err = httpWriteTimeout(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.GeocoderEnabled && cfg.GeocoderAPIKey == "" {
		return nil, errors.New("GEOCODER_ENABLED is true but YANDEX_GEOCODER_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaOrderTopic == "" {
		return nil, errors.New("KAFKA_ORDER_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func httpWriteTimeout(cfg *Config) (time.Duration, error) {
	if os.Getenv("HTTP_WRITE_TIMEOUT") != "" {
		return parsePositiveDuration("HTTP_WRITE_TIMEOUT", "")
	}
	if !cfg.GeocoderEnabled {
		return minHTTPWriteTimeout, nil
	}
	return max(minHTTPWriteTimeout, coldReportMisses*cfg.GeocoderTimeout), nil
}

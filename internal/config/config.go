package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/site-outages-etl/internal/domain"
)

const (
	// DefaultAPIBaseURL is the outages API root.
	DefaultAPIBaseURL = "https://api.krakenflex.systems/interview-tests-mock-api/v1"
	// DefaultAPIKey is a placeholder; set API_KEY for real runs.
	DefaultAPIKey = "EltgJ5G8m44IzwE6UN2Y4B4NjPW77Zk6FJK3lL23"
	// DefaultSiteName is the site processed when none is given.
	DefaultSiteName = "norwich-pear-tree"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	APIBaseURL string
	APIKey     string
	APITimeout time.Duration

	// Retry policy for API requests.
	RetryMaxAttempts   int
	RetryBackoffFactor float64
	RetryMaxBackoff    time.Duration

	SiteName string
	Cutoff   time.Time

	LogLevel  string
	LogFormat string

	// Optional Kafka mirror of uploaded outages; disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string

	// Optional Pushgateway delivery of run metrics.
	PushgatewayURL string
	PushgatewayJob string
}

// KafkaEnabled reports whether uploaded outages should also be published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	timeout, err := parsePositiveDuration("API_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	maxBackoff, err := parsePositiveDuration("API_RETRY_MAX_BACKOFF", "120s")
	if err != nil {
		return nil, err
	}

	attempts, err := strconv.Atoi(sharedcfg.EnvOrDefault("API_RETRY_MAX_ATTEMPTS", "3"))
	if err != nil || attempts < 1 || attempts > 10 {
		return nil, errors.New("invalid API_RETRY_MAX_ATTEMPTS: must be between 1 and 10")
	}

	factor, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("API_RETRY_BACKOFF_FACTOR", "1.0"), 64)
	if err != nil || factor < 0 {
		return nil, errors.New("invalid API_RETRY_BACKOFF_FACTOR: must be a non-negative number")
	}

	cutoff, err := domain.ParseCutoff(sharedcfg.EnvOrDefault("OUTAGES_CUTOFF", "2022-01-01T00:00:00.000Z"))
	if err != nil {
		return nil, fmt.Errorf("invalid OUTAGES_CUTOFF: %w", err)
	}

	logLevel := sharedcfg.EnvOrDefault("LOG_LEVEL", "info")
	if strings.EqualFold(os.Getenv("OP_DEBUG"), "true") {
		logLevel = "debug"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		APIBaseURL:         strings.TrimRight(sharedcfg.EnvOrDefault("API_BASE_URL", DefaultAPIBaseURL), "/"),
		APIKey:             sharedcfg.EnvOrDefault("API_KEY", DefaultAPIKey),
		APITimeout:         timeout,
		RetryMaxAttempts:   attempts,
		RetryBackoffFactor: factor,
		RetryMaxBackoff:    maxBackoff,
		SiteName:           sharedcfg.EnvOrDefault("SITE_NAME", DefaultSiteName),
		Cutoff:             cutoff,
		LogLevel:           logLevel,
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		KafkaBrokers:       brokers,
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "site-outages"),
		PushgatewayURL:     os.Getenv("PUSHGATEWAY_URL"),
		PushgatewayJob:     sharedcfg.EnvOrDefault("PUSHGATEWAY_JOB", "site-outages-etl"),
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("API_BASE_URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API_KEY must not be empty")
	}
	if cfg.SiteName == "" {
		return nil, errors.New("SITE_NAME must not be empty")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

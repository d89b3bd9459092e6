// Package config centralises configuration parsing for the signup service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration values for the signup service.
type Config struct {
	HTTPAddress           string        `yaml:"http_address"`
	MetricsAddress        string        `yaml:"metrics_address"` // Consumer-only metrics listener.
	LogLevel              string        `yaml:"log_level"`
	CORSOrigin            string        `yaml:"cors_origin"`
	SeedPath              string        `yaml:"seed_path"` // Optional YAML activity catalog.
	KafkaBrokers          []string      `yaml:"kafka_brokers"`
	EventsTopic           string        `yaml:"events_topic"`
	SchemaRegistryURL     string        `yaml:"schema_registry_url"`
	EventsFlushInterval   time.Duration `yaml:"events_flush_interval"`
	EventsBatchSize       int           `yaml:"events_batch_size"`
	EventsQueueSize       int           `yaml:"events_queue_size"`
	EventsBatchTimeout    time.Duration `yaml:"events_batch_timeout"` // Kafka writer batch fill deadline.
	EventsAutoCreateTopic bool          `yaml:"events_auto_create_topic"`
	ConsumerGroupID       string        `yaml:"consumer_group_id"`
}

// EventsEnabled reports whether membership events should be sent to Kafka.
func (c Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Defaults returns the configuration used for local dev.
func Defaults() Config {
	return Config{
		HTTPAddress:         ":8080",
		MetricsAddress:      ":9102",
		LogLevel:            "info",
		CORSOrigin:          "http://localhost:5173",
		EventsTopic:         "activity_membership",
		EventsFlushInterval: time.Second,
		EventsBatchSize:     25,
		EventsQueueSize:     1024,
		EventsBatchTimeout:  10 * time.Millisecond,
		ConsumerGroupID:     "activity-roster-audit",
	}
}

// Load applies, in order: defaults, the YAML file named by CONFIG_PATH, and
// environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPAddress = getEnv("HTTP_ADDRESS", cfg.HTTPAddress)
	cfg.MetricsAddress = getEnv("METRICS_ADDRESS", cfg.MetricsAddress)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", cfg.CORSOrigin)
	cfg.SeedPath = getEnv("SEED_PATH", cfg.SeedPath)
	cfg.EventsTopic = getEnv("EVENTS_TOPIC", cfg.EventsTopic)
	cfg.SchemaRegistryURL = getEnv("SCHEMA_REGISTRY_URL", cfg.SchemaRegistryURL)
	cfg.EventsFlushInterval = getDurationEnv("EVENTS_FLUSH_INTERVAL", cfg.EventsFlushInterval)
	cfg.EventsBatchSize = getIntEnv("EVENTS_BATCH_SIZE", cfg.EventsBatchSize)
	cfg.EventsQueueSize = getIntEnv("EVENTS_QUEUE_SIZE", cfg.EventsQueueSize)
	cfg.EventsBatchTimeout = getDurationEnv("EVENTS_BATCH_TIMEOUT", cfg.EventsBatchTimeout)
	cfg.EventsAutoCreateTopic = getBoolEnv("EVENTS_AUTO_CREATE_TOPIC", cfg.EventsAutoCreateTopic)
	cfg.ConsumerGroupID = getEnv("CONSUMER_GROUP_ID", cfg.ConsumerGroupID)

	if brokers, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

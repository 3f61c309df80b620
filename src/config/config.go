// Package config provides configuration management for the relay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cursor store backends.
const (
	CursorStoreBroker   = "broker"
	CursorStoreMemory   = "memory"
	CursorStorePostgres = "postgres"
	CursorStoreBadger   = "badger"
)

// Dead-letter sink backends.
const (
	DeadLetterTopic    = "topic"
	DeadLetterPostgres = "postgres"
	DeadLetterMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	// Brokers are the Kafka/Redpanda seed addresses. Empty selects the
	// in-memory broker.
	Brokers []string

	// HTTPAddr is the listen address of the producer servers.
	HTTPAddr string

	// PublishDelay is waited before every payment publish.
	PublishDelay time.Duration

	// Partitions is the partition count of in-memory and provisioned topics.
	Partitions int

	// PostgresDSN is the connection string for Postgres-backed stores.
	PostgresDSN string

	// CursorStore selects where group cursors are checkpointed in addition
	// to the broker's own offset commits.
	CursorStore string

	// BadgerDir is the data directory of the badger cursor store.
	BadgerDir string

	// DeadLetter selects the dead-letter sink.
	DeadLetter string

	// GroupsFile is an optional YAML file with consumer group definitions.
	GroupsFile string

	// RateLimit is the number of HTTP publish requests accepted per second. Zero disables it.
	RateLimit float64

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Default values.
const (
	DefaultHTTPAddr     = ":8080"
	DefaultPublishDelay = time.Second
	DefaultPartitions   = 3
	DefaultBadgerDir    = "./data/cursors"
	DefaultLogLevel     = "info"
)

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:     DefaultHTTPAddr,
		PublishDelay: DefaultPublishDelay,
		Partitions:   DefaultPartitions,
		BadgerDir:    DefaultBadgerDir,
		CursorStore:  CursorStoreBroker,
		LogLevel:     DefaultLogLevel,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		GroupsFile:   os.Getenv("RELAY_GROUPS_FILE"),
	}

	if v := os.Getenv("RELAY_BROKERS"); v != "" {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.Brokers = append(cfg.Brokers, addr)
			}
		}
	}
	if v := os.Getenv("RELAY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("RELAY_PUBLISH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_PUBLISH_DELAY %q: %w", v, err)
		}
		cfg.PublishDelay = d
	}
	if v := os.Getenv("RELAY_PARTITIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_PARTITIONS %q: %w", v, err)
		}
		cfg.Partitions = n
	}
	if v := os.Getenv("RELAY_CURSOR_STORE"); v != "" {
		cfg.CursorStore = strings.ToLower(v)
	}
	if v := os.Getenv("RELAY_BADGER_DIR"); v != "" {
		cfg.BadgerDir = v
	}
	if v := os.Getenv("RELAY_DLQ"); v != "" {
		cfg.DeadLetter = strings.ToLower(v)
	}
	if v := os.Getenv("RELAY_RATE_LIMIT"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_RATE_LIMIT %q: %w", v, err)
		}
		cfg.RateLimit = r
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.DeadLetter == "" {
		cfg.DeadLetter = DeadLetterMemory
		if len(cfg.Brokers) > 0 {
			cfg.DeadLetter = DeadLetterTopic
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	if c.PublishDelay < 0 {
		return fmt.Errorf("publish delay must not be negative, got %s", c.PublishDelay)
	}
	if c.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive, got %d", c.Partitions)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}

	switch c.CursorStore {
	case CursorStoreBroker, CursorStoreMemory:
	case CursorStorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres cursor store")
		}
	case CursorStoreBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("RELAY_BADGER_DIR is required for the badger cursor store")
		}
	default:
		return fmt.Errorf("unknown cursor store %q", c.CursorStore)
	}

	switch c.DeadLetter {
	case DeadLetterMemory, DeadLetterTopic:
	case DeadLetterPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres dead-letter sink")
		}
	default:
		return fmt.Errorf("unknown dead-letter sink %q", c.DeadLetter)
	}

	return nil
}

// UseInMemoryBroker reports whether no broker addresses were configured.
func (c *Config) UseInMemoryBroker() bool {
	return len(c.Brokers) == 0
}

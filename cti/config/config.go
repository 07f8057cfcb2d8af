// Package config loads the client configuration from an optional YAML file
// and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CTIDashboard/go-api/cti/queue"
	"github.com/CTIDashboard/go-api/cti/scan"
	"gopkg.in/yaml.v3"
)

// Journal drivers.
const (
	JournalNone     = "none"
	JournalSQLite   = "sqlite"
	JournalValkey   = "valkey"
	JournalPostgres = "postgres"
)

// Snapshot stores.
const (
	SnapshotMemory = "memory"
	SnapshotValkey = "valkey"
)

// Broker drivers.
const (
	BrokerNone = "none"
	BrokerAMQP = "amqp"
	BrokerNATS = "nats"
)

type Config struct {
	API       scan.Config    `yaml:"api"`
	History   HistoryConfig  `yaml:"history"`
	Journal   JournalConfig  `yaml:"journal"`
	Valkey    ValkeyConfig   `yaml:"valkey"`
	Postgres  PostgresConfig `yaml:"postgres"`
	Snapshots SnapshotConfig `yaml:"snapshots"`
	Broker    BrokerConfig   `yaml:"broker"`
	NVD       NVDConfig      `yaml:"nvd"`
	Server    ServerConfig   `yaml:"server"`
	Logging   LoggingConfig  `yaml:"logging"`
}

type HistoryConfig struct {
	// Limit is how many entries to request from the lookup service.
	Limit    int `yaml:"limit"`
	PageSize int `yaml:"page_size"`
}

type JournalConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type ValkeyConfig struct {
	Address string `yaml:"address"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SnapshotConfig struct {
	Store string `yaml:"store"`
}

type NVDConfig struct {
	APIKey string `yaml:"api_key"`
}

type BrokerConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
	// Exchange is the AMQP fanout exchange every dashboard listens on.
	Exchange string `yaml:"exchange"`
	// Queue, when set, replaces the fanout with one shared durable AMQP
	// queue whose consumers compete for events.
	Queue   string `yaml:"queue"`
	Subject string `yaml:"subject"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RequireAPIKey protects /api/v1 with keys issued by "cti apikey create".
	// Keys live in valkey.
	RequireAPIKey bool `yaml:"require_api_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AMQPRoute returns the AMQP route for the broker settings.
func (b BrokerConfig) AMQPRoute() queue.Route {
	return queue.Route{Exchange: b.Exchange, Queue: b.Queue}
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		API:       *scan.DefaultConfig(),
		History:   HistoryConfig{Limit: scan.DefaultHistoryLimit, PageSize: 10},
		Journal:   JournalConfig{Driver: JournalNone, Path: "cti-history.db"},
		Valkey:    ValkeyConfig{Address: "localhost:6379"},
		Snapshots: SnapshotConfig{Store: SnapshotMemory},
		Broker: BrokerConfig{
			Driver:   BrokerNone,
			Exchange: "cti.scans",
			Subject:  "cti.scan.completed",
		},
		Server:  ServerConfig{Addr: ":8088"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		data = b
	}
	return LoadFromBytes(data)
}

// LoadFromBytes is Load for an in-memory YAML document.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = def.API.BaseURL
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = def.API.MaxBodyBytes
	}
	if cfg.History.Limit <= 0 {
		cfg.History.Limit = def.History.Limit
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = JournalNone
	}
	if cfg.Broker.Driver == "" {
		cfg.Broker.Driver = BrokerNone
	}
	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = def.Broker.Exchange
	}
	if cfg.Snapshots.Store == "" {
		cfg.Snapshots.Store = SnapshotMemory
	}
	cfg.Snapshots.Store = strings.ToLower(cfg.Snapshots.Store)
	cfg.Journal.Driver = strings.ToLower(cfg.Journal.Driver)
	cfg.Broker.Driver = strings.ToLower(cfg.Broker.Driver)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CTI_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CTI_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("CTI_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = d
		}
	}
	if v := os.Getenv("CTI_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.Limit = n
		}
	}
	if v := os.Getenv("CTI_JOURNAL"); v != "" {
		cfg.Journal.Driver = v
	}
	if v := os.Getenv("CTI_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("CTI_VALKEY_ADDR"); v != "" {
		cfg.Valkey.Address = v
	}
	if v := os.Getenv("CTI_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CTI_SNAPSHOT_STORE"); v != "" {
		cfg.Snapshots.Store = v
	}
	if v := os.Getenv("NVD_API_KEY"); v != "" {
		cfg.NVD.APIKey = v
	}
	if v := os.Getenv("CTI_BROKER"); v != "" {
		cfg.Broker.Driver = v
	}
	if v := os.Getenv("CTI_BROKER_URL"); v != "" {
		cfg.Broker.URL = v
	}
	if v := os.Getenv("CTI_BROKER_QUEUE"); v != "" {
		cfg.Broker.Queue = v
	}
	if v := os.Getenv("CTI_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CTI_REQUIRE_API_KEY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.RequireAPIKey = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if c.History.PageSize <= 0 {
		return fmt.Errorf("history: page_size must be positive, got %d", c.History.PageSize)
	}
	switch c.Journal.Driver {
	case JournalNone, JournalValkey:
	case JournalSQLite:
		if c.Journal.Path == "" {
			return fmt.Errorf("journal: sqlite driver requires a path")
		}
	case JournalPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("journal: postgres driver requires postgres.dsn")
		}
	default:
		return fmt.Errorf("journal: unknown driver %q", c.Journal.Driver)
	}
	switch c.Snapshots.Store {
	case SnapshotMemory, SnapshotValkey:
	default:
		return fmt.Errorf("snapshots: unknown store %q", c.Snapshots.Store)
	}
	switch c.Broker.Driver {
	case BrokerNone:
	case BrokerAMQP, BrokerNATS:
		if c.Broker.URL == "" {
			return fmt.Errorf("broker: %s driver requires a url", c.Broker.Driver)
		}
	default:
		return fmt.Errorf("broker: unknown driver %q", c.Broker.Driver)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/resilience/internal/infra/storage"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied. It is used
// when no config file exists.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Queue.Backend == "" {
		c.Queue.Backend = BackendMemory
	}
	if c.Queue.Key == "" {
		c.Queue.Key = storage.DefaultQueueKey
	}
	if c.Queue.MaxSize == 0 {
		c.Queue.MaxSize = 50
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = 3
	}

	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}

	if c.Network.Probe == "" {
		c.Network.Probe = ProbeNone
	}
	if c.Network.Interval == 0 {
		c.Network.Interval = 10 * time.Second
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = 3 * time.Second
	}
	if c.Network.SettleDelay == 0 {
		c.Network.SettleDelay = 2 * time.Second
	}

	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = 10 * time.Second
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/resilience.db"
	}
}

// Validate checks the settings each backend needs.
func (c *AppConfig) Validate() error {
	switch c.Queue.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("queue backend redis requires redis.url")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("queue backend postgres requires database.url")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	switch c.Network.Probe {
	case ProbeNone:
	case ProbeHTTP, ProbeGRPC:
		if c.Network.Target == "" {
			return fmt.Errorf("network probe %s requires network.target", c.Network.Probe)
		}
	default:
		return fmt.Errorf("unknown network probe %q", c.Network.Probe)
	}
	return nil
}

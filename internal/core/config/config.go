package config

import (
	"time"

	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
	"github.com/vietddude/resilience/internal/infra/storage/sqlite"
)

// Queue storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Network probe modes.
const (
	ProbeNone = "none"
	ProbeHTTP = "http"
	ProbeGRPC = "grpc"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Queue    QueueConfig        `yaml:"queue"`
	Retry    RetryConfig        `yaml:"retry"`
	Network  NetworkConfig      `yaml:"network"`
	Dispatch DispatchConfig     `yaml:"dispatch"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	SQLite   sqlite.Config      `yaml:"sqlite"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// QueueConfig selects and bounds the offline queue.
type QueueConfig struct {
	Backend    string `yaml:"backend"` // memory, redis, postgres, sqlite
	Key        string `yaml:"key"`
	MaxSize    int    `yaml:"max_size"`
	MaxRetries int    `yaml:"max_retries"`
	// FailedRetention prunes failed items older than this. 0 keeps them.
	FailedRetention time.Duration `yaml:"failed_retention"`
}

// RetryConfig is the error handler's backoff.
type RetryConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// NetworkConfig controls connectivity detection.
type NetworkConfig struct {
	Probe       string        `yaml:"probe"`  // none, http, grpc
	Target      string        `yaml:"target"` // URL for http, host:port for grpc
	Service     string        `yaml:"service"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// DispatchConfig is where queued actions are delivered.
type DispatchConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Worker  WorkerConfig  `yaml:"worker"`
	Sending SendingConfig `yaml:"sending"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Hostname string `yaml:"hostname"` // FQDN of the server
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
}

// StorageConfig contains storage settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"` // SQLite database for contacts, accounts, campaigns
	QueuePath    string `yaml:"queue_path"`    // BoltDB file for the send task queue
}

// WorkerConfig contains send worker settings
type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // How often due tasks are claimed
	BatchSize    int           `yaml:"batch_size"`    // Max tasks claimed per poll
}

// SendingConfig contains delivery and retry settings
type SendingConfig struct {
	SendTimeout time.Duration `yaml:"send_timeout"` // Per-send SMTP timeout
	MaxRetries  int           `yaml:"max_retries"`  // Retries per task after the first failure
	BackoffBase time.Duration `yaml:"backoff_base"` // First retry delay, doubled each retry
	DryRun      bool          `yaml:"dry_run"`      // Record messages instead of delivering
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // Default: :9090
	Path       string `yaml:"path"`        // Default: /metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied, for
// running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Server.Hostname = hostname
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "/var/lib/mailerpro/mailerpro.db"
	}
	if c.Storage.QueuePath == "" {
		c.Storage.QueuePath = "/var/lib/mailerpro/queue.db"
	}

	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 10 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 50
	}

	if c.Sending.SendTimeout == 0 {
		c.Sending.SendTimeout = 30 * time.Second
	}
	if c.Sending.MaxRetries == 0 {
		c.Sending.MaxRetries = 3
	}
	if c.Sending.BackoffBase == 0 {
		c.Sending.BackoffBase = 60 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.DatabasePath == c.Storage.QueuePath {
		return fmt.Errorf("storage.database_path and storage.queue_path must differ")
	}

	if c.Worker.PollInterval < time.Second {
		return fmt.Errorf("worker.poll_interval must be at least 1s")
	}
	if c.Worker.BatchSize < 1 {
		return fmt.Errorf("worker.batch_size must be positive")
	}

	if c.Sending.MaxRetries < 0 {
		return fmt.Errorf("sending.max_retries must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

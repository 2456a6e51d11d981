package fbq

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-based configuration for a client or worker. All fields
// map onto the corresponding functional options; the file format is YAML.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Token        string        `yaml:"token"`
	TLS          bool          `yaml:"tls"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	Compress     *bool         `yaml:"compress"`
	Owner        string        `yaml:"owner"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Concurrency  int           `yaml:"concurrency"`
}

// DefaultConfig returns a configuration with the same defaults the
// functional options use.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		PollInterval: 1 * time.Second,
		Concurrency:  1,
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fbq: read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("fbq: parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("fbq: invalid configuration: %w", err)
	}
	return cfg, nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

// ClientOptions maps the configuration onto client options.
func (c *Config) ClientOptions() []ClientOption {
	opts := []ClientOption{
		WithPort(c.Port),
		WithTLS(c.TLS),
		WithTimeout(c.Timeout),
		WithMaxRetries(c.MaxRetries),
	}
	if c.Token != "" {
		opts = append(opts, WithToken(c.Token))
	}
	if c.Compress != nil {
		opts = append(opts, WithCompression(*c.Compress))
	}
	return opts
}

// WorkerOptions maps the configuration onto worker options.
func (c *Config) WorkerOptions() []WorkerOption {
	opts := []WorkerOption{
		WithPollInterval(c.PollInterval),
		WithConcurrency(c.Concurrency),
		WithClientOptions(c.ClientOptions()...),
	}
	if c.Owner != "" {
		opts = append(opts, WithOwner(c.Owner))
	}
	return opts
}

// NewClientFromConfig creates a client from a YAML configuration file.
func NewClientFromConfig(path string) (*Client, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.Host, cfg.ClientOptions()...)
}

// NewWorkerFromConfig creates a worker from a YAML configuration file.
func NewWorkerFromConfig(path string) (*Worker, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewWorker(cfg.Host, cfg.WorkerOptions()...)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Remote       RemoteConfig       `yaml:"remote"`
	Store        StoreConfig        `yaml:"store"`
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Logging      LoggingConfig      `yaml:"logging"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	API          APIConfig          `yaml:"api"`
	Exports      ExportConfig       `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// RemoteConfig points at the hosted backend the queue replays against.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	AuthToken      string `yaml:"auth_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// StoreConfig selects the durable backing for pending mutations.
// Backend is one of sqlite, file, redis, memory.
type StoreConfig struct {
	Backend        string `yaml:"backend"`
	Path           string `yaml:"path"`
	MemoryFallback bool   `yaml:"memory_fallback"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type QueueConfig struct {
	MaxAttempts          int     `yaml:"max_attempts"`
	InitialDelaySeconds  int     `yaml:"initial_delay_seconds"`
	MaxDelaySeconds      int     `yaml:"max_delay_seconds"`
	BackoffFactor        float64 `yaml:"backoff_factor"`
	DrainIntervalSeconds int     `yaml:"drain_interval_seconds"`
	ItemTimeoutSeconds   int     `yaml:"item_timeout_seconds"`
}

func (q QueueConfig) InitialDelay() time.Duration {
	return time.Duration(q.InitialDelaySeconds) * time.Second
}

func (q QueueConfig) MaxDelay() time.Duration {
	return time.Duration(q.MaxDelaySeconds) * time.Second
}

func (q QueueConfig) DrainInterval() time.Duration {
	return time.Duration(q.DrainIntervalSeconds) * time.Second
}

func (q QueueConfig) ItemTimeout() time.Duration {
	return time.Duration(q.ItemTimeoutSeconds) * time.Second
}

type ConnectivityConfig struct {
	ProbeURL        string `yaml:"probe_url"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

func (c ConnectivityConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c ConnectivityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config at path, expanding ${VAR} references from the
// environment (a .env file next to the binary is honored when present).
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}

	switch c.Store.Backend {
	case "sqlite", "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store backend %q requires store.path", c.Store.Backend)
		}
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("store backend redis requires redis.address")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Queue.BackoffFactor < 0 {
		return errors.New("queue backoff_factor must not be negative")
	}

	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth enabled but no api_keys configured")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bloomsync"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = 15
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 8
	}
	if c.Queue.InitialDelaySeconds == 0 {
		c.Queue.InitialDelaySeconds = 2
	}
	if c.Queue.MaxDelaySeconds == 0 {
		c.Queue.MaxDelaySeconds = 300
	}
	if c.Queue.BackoffFactor == 0 {
		c.Queue.BackoffFactor = 2
	}
	if c.Queue.DrainIntervalSeconds == 0 {
		c.Queue.DrainIntervalSeconds = 30
	}
	if c.Queue.ItemTimeoutSeconds == 0 {
		c.Queue.ItemTimeoutSeconds = 10
	}
	if c.Connectivity.IntervalSeconds == 0 {
		c.Connectivity.IntervalSeconds = 15
	}
	if c.Connectivity.TimeoutSeconds == 0 {
		c.Connectivity.TimeoutSeconds = 5
	}
	if c.Connectivity.ProbeURL == "" && c.Remote.BaseURL != "" {
		c.Connectivity.ProbeURL = c.Remote.BaseURL + "/health"
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

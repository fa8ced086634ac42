package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vpntrail/vpntrail/internal/sink"
)

// Config represents the main configuration.
type Config struct {
	OpenVPN  OpenVPNConfig  `yaml:"openvpn"`
	State    StateConfig    `yaml:"state"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sink     sink.Config    `yaml:"sink"`
	Metrics  *MetricsConfig `yaml:"metrics,omitempty"`
	Tracing  *TracingConfig `yaml:"tracing,omitempty"`
}

// OpenVPNConfig locates the files the daemon watches.
type OpenVPNConfig struct {
	LogPath    string `yaml:"log_path"`
	StatusPath string `yaml:"status_path,omitempty"`
}

// StateConfig controls the durable state file.
type StateConfig struct {
	Path               string        `yaml:"path"`
	MaxTrackedSessions int           `yaml:"max_tracked_sessions,omitempty"`
	IdleSessionTimeout time.Duration `yaml:"idle_session_timeout,omitempty"`
}

// ScheduleConfig controls how often the two passes run.
type ScheduleConfig struct {
	LogInterval   time.Duration `yaml:"log_interval,omitempty"`
	StatsInterval time.Duration `yaml:"stats_interval,omitempty"`
}

// ServerConfig identifies this VPN server in emitted records.
type ServerConfig struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location,omitempty"`
}

// LoggingConfig defines logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MetricsConfig holds the Prometheus endpoint configuration. Health
// endpoints are served on the same listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path,omitempty"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SampleRate   float64 `yaml:"sample_rate,omitempty"`
	EnableStdout bool    `yaml:"enable_stdout,omitempty"`
}

// Default values
const (
	DefaultLogPath            = "/var/log/openvpn.log"
	DefaultStatusPath         = "/var/log/openvpn-status.log"
	DefaultStatePath          = "/var/lib/vpntrail/state.json"
	DefaultMaxTrackedSessions = 1000
	DefaultIdleSessionTimeout = 24 * time.Hour
	DefaultLogInterval        = 5 * time.Minute
	DefaultStatsInterval      = 5 * time.Minute
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
)

// Load loads configuration from a YAML file with environment variable
// expansion.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration.
func (c *Config) applyDefaults() {
	if c.OpenVPN.LogPath == "" {
		c.OpenVPN.LogPath = DefaultLogPath
	}
	if c.OpenVPN.StatusPath == "" {
		c.OpenVPN.StatusPath = DefaultStatusPath
	}
	if c.State.Path == "" {
		c.State.Path = DefaultStatePath
	}
	if c.State.MaxTrackedSessions <= 0 {
		c.State.MaxTrackedSessions = DefaultMaxTrackedSessions
	}
	if c.State.IdleSessionTimeout <= 0 {
		c.State.IdleSessionTimeout = DefaultIdleSessionTimeout
	}
	if c.Schedule.LogInterval <= 0 {
		c.Schedule.LogInterval = DefaultLogInterval
	}
	if c.Schedule.StatsInterval <= 0 {
		c.Schedule.StatsInterval = DefaultStatsInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "mongodb"
	}
	if c.Metrics != nil && c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate validates the configuration. A failure here is fatal at
// startup: a daemon running with a bad config silently loses events.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server name must be configured")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	switch c.Sink.Type {
	case "mongodb":
		if c.Sink.MongoDB == nil || c.Sink.MongoDB.URI == "" {
			return fmt.Errorf("mongodb sink requires a uri")
		}
	case "kafka":
		if c.Sink.Kafka == nil || len(c.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka sink requires brokers")
		}
	case "elasticsearch":
		if c.Sink.Elasticsearch == nil ||
			(len(c.Sink.Elasticsearch.Addresses) == 0 && c.Sink.Elasticsearch.CloudID == "") {
			return fmt.Errorf("elasticsearch sink requires addresses or a cloud ID")
		}
	case "s3":
		if c.Sink.S3 == nil || c.Sink.S3.Bucket == "" {
			return fmt.Errorf("s3 sink requires a bucket")
		}
	case "stdout":
	default:
		return fmt.Errorf("unknown sink type: %s", c.Sink.Type)
	}

	if c.Metrics != nil && c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics enabled but no address configured")
	}

	return nil
}

// DefaultConfig returns a default configuration writing to stdout.
func DefaultConfig() *Config {
	cfg := &Config{
		OpenVPN: OpenVPNConfig{
			LogPath:    DefaultLogPath,
			StatusPath: DefaultStatusPath,
		},
		State: StateConfig{
			Path:               DefaultStatePath,
			MaxTrackedSessions: DefaultMaxTrackedSessions,
			IdleSessionTimeout: DefaultIdleSessionTimeout,
		},
		Schedule: ScheduleConfig{
			LogInterval:   DefaultLogInterval,
			StatsInterval: DefaultStatsInterval,
		},
		Server: ServerConfig{
			Name: "openvpn",
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Sink: sink.Config{
			Type: "stdout",
		},
	}
	return cfg
}

// Package config loads and validates the travels service configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	// Bind is the API listen address, e.g. ":80" or "0.0.0.0:8080".
	Bind string `yaml:"bind"`
	// AdminPort serves health, status, metrics, and audit queries.
	AdminPort int `yaml:"admin_port"`

	DataFile    string `yaml:"data_file"`
	OptionsFile string `yaml:"options_file"`

	// KeepAlive controls HTTP keep-alive on GET responses. POST responses
	// always close the connection.
	KeepAlive bool `yaml:"keep_alive"`

	// NumThreads caps GOMAXPROCS when positive.
	NumThreads int `yaml:"num_threads,omitempty"`

	LogLevel string `yaml:"log_level"`

	// StatsInterval is how often the daemon logs dataset counts. Zero
	// disables the job.
	StatsInterval time.Duration `yaml:"stats_interval"`

	Audit  AuditConfig  `yaml:"audit"`
	Events EventsConfig `yaml:"events"`
}

// AuditConfig configures the SQLite mutation audit store.
type AuditConfig struct {
	// Path is the SQLite database path; empty disables auditing.
	// ":memory:" is accepted for tests.
	Path string `yaml:"path,omitempty"`
}

// EventsConfig configures the NATS mutation publisher.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Default returns the built-in configuration the service falls back to when
// no config file is readable.
func Default() *Config {
	return &Config{
		Bind:          ":80",
		AdminPort:     8081,
		DataFile:      "/tmp/data/data.zip",
		OptionsFile:   "/tmp/data/options.txt",
		KeepAlive:     true,
		LogLevel:      "info",
		StatsInterval: 0,
		Events: EventsConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "travels.mutations",
		},
	}
}

// Load reads configuration from the given path. A missing file is not an
// error: the built-in defaults are used, matching the service's original
// contest deployment where config.yml was optional.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Configuration file not found, using defaults", "path", configPath)
			return Default(), nil
		}
		return nil, errors.ConfigError("could not read configuration file").
			WithCause(err).WithContext("path", configPath).Build()
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.ConfigError("could not parse configuration").
			WithCause(err).WithContext("path", configPath).Build()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Bind == "" {
		return errors.ConfigError("bind address must not be empty").Build()
	}
	if c.AdminPort <= 0 || c.AdminPort > 65535 {
		return errors.ConfigError("admin_port out of range").
			WithContext("admin_port", c.AdminPort).Build()
	}
	if c.DataFile == "" {
		return errors.ConfigError("data_file is required").Build()
	}
	if c.StatsInterval < 0 {
		return errors.ConfigError("stats_interval must not be negative").Build()
	}
	if c.Events.Enabled {
		if c.Events.NATSURL == "" {
			return errors.ConfigError("events.nats_url is required when events are enabled").Build()
		}
		if c.Events.Subject == "" {
			return errors.ConfigError("events.subject is required when events are enabled").Build()
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.ConfigError("unknown log_level").
			WithContext("log_level", c.LogLevel).Build()
	}
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError(
			fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}

	example := Default()
	example.Bind = ":8080"
	example.StatsInterval = time.Minute
	example.Audit.Path = "./travels-audit.db"

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.ConfigError("could not marshal example configuration").WithCause(err).Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.ConfigError("could not write configuration file").
			WithCause(err).WithContext("path", configPath).Build()
	}
	return nil
}

// loadEnvFiles loads .env/.env.local before config parsing so ${VAR}
// expansion in the YAML can see them. Existing process env wins.
func loadEnvFiles() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Could not load env file", "path", path, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", path)
		return
	}
}

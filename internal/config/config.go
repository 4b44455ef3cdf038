// ABOUTME: Configuration loading for the event bot
// ABOUTME: Loads TOML config with environment variable expansion

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Matrix   MatrixConfig   `toml:"matrix"`
	Bridge   BridgeConfig   `toml:"bridge"`
	Database DatabaseConfig `toml:"database"`
	Hiscores HiscoresConfig `toml:"hiscores"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type MatrixConfig struct {
	Homeserver string `toml:"homeserver"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
}

type BridgeConfig struct {
	AllowedRooms  []string `toml:"allowed_rooms"`
	CommandPrefix string   `toml:"command_prefix"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type HiscoresConfig struct {
	BaseURL  string `toml:"base_url"`
	CacheTTL string `toml:"cache_ttl"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Bridge.CommandPrefix == "" {
		c.Bridge.CommandPrefix = "!events"
	}
	if c.Database.Path == "" {
		c.Database.Path = "eventbot.db"
	}
	if c.Hiscores.CacheTTL == "" {
		c.Hiscores.CacheTTL = "3m"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}
	if c.Matrix.Username == "" {
		return fmt.Errorf("matrix.username is required")
	}
	if c.Matrix.Password == "" {
		return fmt.Errorf("matrix.password is required")
	}
	if c.Hiscores.BaseURL != "" {
		if _, err := url.Parse(c.Hiscores.BaseURL); err != nil {
			return fmt.Errorf("hiscores.base_url is not a valid URL: %w", err)
		}
	}
	if _, err := c.HiscoresCacheTTL(); err != nil {
		return fmt.Errorf("hiscores.cache_ttl is not a valid duration: %w", err)
	}
	return nil
}

// HiscoresCacheTTL parses the configured lookup cache duration.
func (c *Config) HiscoresCacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Hiscores.CacheTTL)
}

// Package config loads geodedupe settings from YAML.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Defaults used when neither the config file nor flags set a value.
const (
	DefaultRadiusMeters = 50
	DefaultListenAddr   = ":8080"
	DefaultUser         = "default"
	DefaultLogLevel     = "info"
)

// Config represents the application configuration
type Config struct {
	DBPath       string  `yaml:"db_path,omitempty"`
	ListenAddr   string  `yaml:"listen_addr,omitempty"`
	RadiusMeters float64 `yaml:"radius_meters,omitempty"`
	Cooperative  bool    `yaml:"cooperative,omitempty"`
	DefaultUser  string  `yaml:"default_user,omitempty"`
	LogLevel     string  `yaml:"log_level,omitempty"`
}

// Default returns a config with every field at its default.
func Default() *Config {
	return &Config{
		DBPath:       DefaultDBPath(),
		ListenAddr:   DefaultListenAddr,
		RadiusMeters: DefaultRadiusMeters,
		DefaultUser:  DefaultUser,
		LogLevel:     DefaultLogLevel,
	}
}

// DefaultConfigPath returns the default config file path following XDG spec
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "geodedupe", "config.yaml")
}

// DefaultDBPath returns the default database path following XDG spec
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("data", "geodedupe.db")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "geodedupe", "geodedupe.db")
}

// Load reads the config at path (DefaultConfigPath when empty) on top of
// the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if math.IsNaN(c.RadiusMeters) || math.IsInf(c.RadiusMeters, 0) {
		return fmt.Errorf("radius_meters must be finite, got %v", c.RadiusMeters)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

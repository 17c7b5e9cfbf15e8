// Package config provides configuration management for agentmux.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for agentmux.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Manager ManagerConfig `mapstructure:"manager"`
	Server  ServerConfig  `mapstructure:"server"`
	Bus     BusConfig     `mapstructure:"bus"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig holds event store configuration.
type StoreConfig struct {
	// Dir overrides the store root. Empty means resolve from the candidate
	// list (AGENT_STORE_DIR, home, XDG_STATE_HOME, cwd, temp).
	Dir string `mapstructure:"dir"`
}

// ManagerConfig holds process manager configuration.
type ManagerConfig struct {
	// MaxAgents caps concurrently running children across the manager.
	MaxAgents int `mapstructure:"maxAgents"`

	// DefaultMode applies when a spawn request omits the mode.
	// One of: plan, edit, ralph.
	DefaultMode string `mapstructure:"defaultMode"`

	// StopGraceSeconds is the SIGTERM->SIGKILL escalation window.
	StopGraceSeconds int `mapstructure:"stopGraceSeconds"`
}

// ServerConfig holds the optional HTTP listener configuration. When Port is
// zero the supervisor speaks MCP over stdio only.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BusConfig holds lifecycle event bus configuration.
// Empty URL means the in-memory bus.
type BusConfig struct {
	URL           string `mapstructure:"url"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// StopGrace returns the stop grace window as a time.Duration.
func (m *ManagerConfig) StopGrace() time.Duration {
	return time.Duration(m.StopGraceSeconds) * time.Second
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.dir", "")

	v.SetDefault("manager.maxAgents", 50)
	v.SetDefault("manager.defaultMode", "edit")
	v.SetDefault("manager.stopGraceSeconds", 2)

	// Server defaults - port 0 disables the HTTP transports (stdio only)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 0)

	// Bus defaults - empty URL means in-memory event bus
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stderr")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTMUX_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or ~/.agentmux/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AGENT_STORE_DIR predates the AGENTMUX_ prefix and stays supported.
	_ = v.BindEnv("store.dir", "AGENT_STORE_DIR", "AGENTMUX_STORE_DIR")
	_ = v.BindEnv("manager.maxAgents", "AGENTMUX_MANAGER_MAX_AGENTS")
	_ = v.BindEnv("manager.defaultMode", "AGENTMUX_MANAGER_DEFAULT_MODE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.agentmux")
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func validate(cfg *Config) error {
	if cfg.Manager.MaxAgents < 1 {
		return fmt.Errorf("manager.maxAgents must be at least 1, got %d", cfg.Manager.MaxAgents)
	}
	switch cfg.Manager.DefaultMode {
	case "plan", "edit", "ralph":
	default:
		return fmt.Errorf("manager.defaultMode must be plan, edit or ralph, got %q", cfg.Manager.DefaultMode)
	}
	if cfg.Manager.StopGraceSeconds < 0 {
		return fmt.Errorf("manager.stopGraceSeconds must not be negative")
	}
	return nil
}

// detectDefaultLogFormat returns "json" in production environments and "text"
// for terminal use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("AGENTMUX_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the push agent.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Firebase   FirebaseConfig   `yaml:"firebase"`
	Session    SessionConfig    `yaml:"session"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Storage    StorageConfig    `yaml:"storage"`
	Wake       WakeConfig       `yaml:"wake"`
	Deliveries DeliveriesConfig `yaml:"deliveries"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// FirebaseConfig holds Firebase Admin SDK settings.
type FirebaseConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
}

// SessionConfig holds session backend connection settings.
type SessionConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// BridgeConfig holds device bridge connection settings.
type BridgeConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig holds SQLite storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// WakeConfig holds wake lock settings.
type WakeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DeliveriesConfig holds delivery log settings.
type DeliveriesConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.setDefaults()

	return cfg, nil
}

// setDefaults applies default values for unset fields.
func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Session.BaseURL == "" {
		c.Session.BaseURL = "http://localhost:8081"
	}
	if c.Session.Timeout == 0 {
		c.Session.Timeout = 10 * time.Second
	}
	if c.Bridge.BaseURL == "" {
		c.Bridge.BaseURL = "http://localhost:9090"
	}
	if c.Bridge.Timeout == 0 {
		c.Bridge.Timeout = 10 * time.Second
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/pushagent/agent.db"
	}
	if c.Wake.Timeout == 0 {
		c.Wake.Timeout = 30 * time.Second
	}
	if c.Deliveries.Retention == 0 {
		c.Deliveries.Retention = 24 * time.Hour
	}
}

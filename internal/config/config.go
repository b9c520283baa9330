package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tallybook-dev/tallybook/internal/category"
)

// Config represents the top-level tallybook.yaml configuration.
type Config struct {
	ListenAddr string              `yaml:"listen_addr"`
	Database   DatabaseConfig      `yaml:"database"`
	Kafka      KafkaConfig         `yaml:"kafka"`
	Reconcile  ReconcileConfig     `yaml:"reconcile"`
	Categories map[string][]string `yaml:"categories,omitempty"`
}

// DatabaseConfig selects the persistence backend. An empty DSN runs
// the in-memory store (development mode).
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// KafkaConfig controls event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic"`
}

// ReconcileConfig locates the operator escalation queue.
type ReconcileConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads a tallybook.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Kafka: KafkaConfig{
			Topic: "tallybook.expenses",
		},
		Reconcile: ReconcileConfig{
			Dir: "data",
		},
	}
}

// Catalog returns the configured category catalog, or the built-in one
// when the config carries no overrides.
func (c *Config) Catalog() *category.Catalog {
	if len(c.Categories) == 0 {
		return category.Default()
	}
	return category.New(c.Categories)
}

// Package config loads the YAML configuration file the run/submit/status
// CLI commands share, mirroring the teacher's internal/cli.Config shape:
// one struct per concern, loaded with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk configuration for a beaver-queue process.
type Config struct {
	Master struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"master"`

	Admin struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"admin"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Submit struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"submit"`
}

// Default returns the configuration a fresh `run` uses when no file is
// given: worker-facing listener on the well-known port, admin enabled on
// the next port up, metrics enabled on port 9090.
func Default() *Config {
	var cfg Config
	cfg.Master.Host = "0.0.0.0"
	cfg.Master.Port = 48484
	cfg.Admin.Enabled = true
	cfg.Admin.Host = "127.0.0.1"
	cfg.Admin.Port = 48485
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	cfg.Submit.Timeout = 30 * time.Second
	return &cfg
}

// Load reads and parses a YAML config file, filling in Default() for any
// field the file does not mention.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

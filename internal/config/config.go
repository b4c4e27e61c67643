package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/realumlabs/realum-dao/pkg/governance"
)

// Config is the process configuration: a YAML file overlaid with
// REALUM_-prefixed environment variables.
type Config struct {
	BindAddr        string  `yaml:"bindAddr"        split_words:"true"`
	Port            uint    `yaml:"port"`
	MetricsPort     uint    `yaml:"metricsPort"     split_words:"true"`
	DataDir         string  `yaml:"dataDir"         split_words:"true"`
	Debug           bool    `yaml:"debug"`
	ShutdownTimeout string  `yaml:"shutdownTimeout" split_words:"true"`

	Governance governance.Params `yaml:"governance"`
}

func defaultConfig() *Config {
	return &Config{
		BindAddr:        "0.0.0.0",
		Port:            8080,
		MetricsPort:     9090,
		ShutdownTimeout: "30s",
		Governance:      governance.DefaultParams(),
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, in that order.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("realum", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port must not be zero")
	}
	if c.Governance.MinProposalLevel < 0 {
		return fmt.Errorf("governance.minProposalLevel must not be negative")
	}
	if c.Governance.DefaultQuorumPercentage < 0 || c.Governance.DefaultQuorumPercentage > 100 {
		return fmt.Errorf("governance.defaultQuorumPercentage must be between 0 and 100")
	}
	if c.Governance.TreasuryInitialBalance < 0 {
		return fmt.Errorf("governance.treasuryInitialBalance must not be negative")
	}
	return nil
}

// ListenAddr returns the API listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

// MetricsAddr returns the metrics listen address.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.MetricsPort)
}

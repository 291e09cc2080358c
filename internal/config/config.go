package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/x402-foundation/sponsorgate/resources"
)

const (
	DefaultBindAddr        = "0.0.0.0"
	DefaultPort            = 8402
	DefaultUpstreamTimeout = "15s"
	DefaultSettleTimeout   = "30s"
)

type Config struct {
	BindAddr        string               `yaml:"bindAddr"        envconfig:"BIND_ADDR"`
	Port            uint                 `yaml:"port"            envconfig:"PORT"`
	DataDir         string               `yaml:"dataDir"         envconfig:"DATA_DIR"`
	PaymentRailURL  string               `yaml:"paymentRailUrl"  envconfig:"PAYMENT_RAIL_URL"`
	TreasuryWallet  string               `yaml:"treasuryWallet"  envconfig:"TREASURY_WALLET"`
	UpstreamTimeout string               `yaml:"upstreamTimeout" envconfig:"UPSTREAM_TIMEOUT"`
	Debug           bool                 `yaml:"debug"           envconfig:"DEBUG"`
	Metrics         bool                 `yaml:"metrics"         envconfig:"METRICS"`
	Resources       []resources.Resource `yaml:"resources"`
}

func defaultConfig() *Config {
	return &Config{
		BindAddr:        DefaultBindAddr,
		Port:            DefaultPort,
		UpstreamTimeout: DefaultUpstreamTimeout,
		Metrics:         true,
	}
}

// Load builds the config from defaults, an optional YAML file, and
// SPONSORGATE_-prefixed environment variables, in that order of precedence.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := envconfig.Process("sponsorgate", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.PaymentRailURL == "" {
		return fmt.Errorf("paymentRailUrl is required")
	}
	if c.TreasuryWallet == "" {
		return fmt.Errorf("treasuryWallet is required")
	}
	if _, err := c.UpstreamTimeoutDuration(); err != nil {
		return fmt.Errorf("invalid upstreamTimeout: %w", err)
	}
	seen := make(map[string]bool)
	for _, res := range c.Resources {
		if res.ID == "" || res.UpstreamURL == "" {
			return fmt.Errorf("resource entries need both id and upstreamUrl")
		}
		if seen[res.ID] {
			return fmt.Errorf("duplicate resource id %q", res.ID)
		}
		seen[res.ID] = true
	}
	return nil
}

// UpstreamTimeoutDuration parses the configured upstream timeout.
func (c *Config) UpstreamTimeoutDuration() (time.Duration, error) {
	if c.UpstreamTimeout == "" {
		return time.ParseDuration(DefaultUpstreamTimeout)
	}
	return time.ParseDuration(c.UpstreamTimeout)
}

// ListenAddr returns the bind address in host:port form.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

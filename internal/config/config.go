package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models homebid.yml.
type Config struct {
	Server struct {
		Addr       string `yaml:"addr"`
		BasePath   string `yaml:"base_path"`
		JWTSecret  string `yaml:"jwt_secret"`
		TokenTTL   int    `yaml:"token_ttl_hours"`
		BcryptCost int    `yaml:"bcrypt_cost"`
	} `yaml:"server"`
	Marketplace struct {
		Categories      []string `yaml:"categories"`
		MaxBidDuration  int      `yaml:"max_bid_duration_days"`
		DefaultUrgency  string   `yaml:"default_urgency"`
		MinBidPrice     float64  `yaml:"min_bid_price"`
		MilestoneLimit  int      `yaml:"milestone_limit"`
		WarrantyCeiling int      `yaml:"warranty_ceiling_months"`
	} `yaml:"marketplace"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one event delivery target.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.TokenTTL <= 0 {
		return fmt.Errorf("config.server.token_ttl_hours must be positive")
	}
	if c.Server.BcryptCost < 4 || c.Server.BcryptCost > 31 {
		return fmt.Errorf("config.server.bcrypt_cost must be between 4 and 31")
	}
	if len(c.Marketplace.Categories) == 0 {
		return fmt.Errorf("config.marketplace.categories is required")
	}
	for _, cat := range c.Marketplace.Categories {
		if cat == "" {
			return fmt.Errorf("config.marketplace.categories contains empty category")
		}
	}
	switch c.Marketplace.DefaultUrgency {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("config.marketplace.default_urgency must be low, medium or high")
	}
	if c.Marketplace.MaxBidDuration <= 0 {
		return fmt.Errorf("config.marketplace.max_bid_duration_days must be positive")
	}
	if c.Marketplace.MinBidPrice < 0 {
		return fmt.Errorf("config.marketplace.min_bid_price must not be negative")
	}
	if c.Marketplace.MilestoneLimit <= 0 {
		return fmt.Errorf("config.marketplace.milestone_limit must be positive")
	}
	if c.Marketplace.WarrantyCeiling < 0 {
		return fmt.Errorf("config.marketplace.warranty_ceiling_months must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Category reports whether cat is an allowed project category.
func (c *Config) Category(cat string) bool {
	for _, known := range c.Marketplace.Categories {
		if known == cat {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "homebid.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  jwt_secret: ""
  token_ttl_hours: 24
  bcrypt_cost: 12

marketplace:
  categories:
    - kitchen
    - bathroom
    - roofing
    - flooring
    - painting
    - plumbing
    - electrical
    - landscaping
    - general
  max_bid_duration_days: 365
  default_urgency: medium
  min_bid_price: 0
  milestone_limit: 100
  warranty_ceiling_months: 120
`

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for oracled.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DatabasePath  string          `yaml:"database"`
	AdminToken    string          `yaml:"admin_token"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Fx            FxConfig        `yaml:"fx"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// OracleConfig carries the one-shot deployment parameters applied on first
// start; subsequent starts reuse the persisted configuration.
type OracleConfig struct {
	Admin                    string `yaml:"admin"`
	Decimals                 uint32 `yaml:"decimals"`
	ResolutionMs             uint32 `yaml:"resolution_ms"`
	PeriodMs                 uint64 `yaml:"period_ms"`
	MaxYieldDeviationPercent uint32 `yaml:"max_yield_deviation_percent"`
	BaseAssetSymbol          string `yaml:"base_asset"`
}

// FxConfig locates the external FX oracle.
type FxConfig struct {
	Endpoint string   `yaml:"endpoint"`
	APIKey   string   `yaml:"api_key"`
	Timeout  Duration `yaml:"timeout"`
}

// RateLimitConfig throttles the public query routes per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Load reads and validates the configuration file, applying defaults for
// optional fields.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8551"
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return Config{}, fmt.Errorf("database path required")
	}
	if strings.TrimSpace(cfg.AdminToken) == "" {
		return Config{}, fmt.Errorf("admin token required")
	}
	if strings.TrimSpace(cfg.Oracle.Admin) == "" {
		cfg.Oracle.Admin = "oracled"
	}
	if cfg.Oracle.Decimals == 0 {
		cfg.Oracle.Decimals = 14
	}
	if cfg.Oracle.ResolutionMs == 0 {
		cfg.Oracle.ResolutionMs = 300_000
	}
	if cfg.Oracle.PeriodMs == 0 {
		cfg.Oracle.PeriodMs = 100 * uint64(cfg.Oracle.ResolutionMs)
	}
	if cfg.Oracle.MaxYieldDeviationPercent == 0 {
		cfg.Oracle.MaxYieldDeviationPercent = 10
	}
	if strings.TrimSpace(cfg.Oracle.BaseAssetSymbol) == "" {
		cfg.Oracle.BaseAssetSymbol = "USD"
	}
	if cfg.Fx.Timeout.Duration <= 0 {
		cfg.Fx.Timeout.Duration = 10 * time.Second
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	return cfg, nil
}

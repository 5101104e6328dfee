// Package config provides configuration management for the trading client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading TradingConfig `mapstructure:"trading"`
	Funding FundingConfig `mapstructure:"funding"`
	API     APIConfig     `mapstructure:"api"`
	Phone   PhoneConfig   `mapstructure:"phone"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode            string `mapstructure:"mode"`             // "live", "paper"
	DefaultCurrency string `mapstructure:"default_currency"` // fallback target currency
	UserID          string `mapstructure:"user_id"`
}

// FundingConfig holds fund-rebalancing configuration.
type FundingConfig struct {
	CentralDepository    string        `mapstructure:"central_depository"` // holding-place label of the preferred target account
	CrossCurrencyFunding bool          `mapstructure:"cross_currency_funding"`
	ConfirmCooldown      time.Duration `mapstructure:"confirm_cooldown"`
	CommissionDebounce   time.Duration `mapstructure:"commission_debounce"`
}

// APIConfig holds brokerage API configuration.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PhoneConfig holds phone-verification configuration.
type PhoneConfig struct {
	Number string `mapstructure:"number"` // registered phone number for confirmation codes
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/securities-trader"
	}
	return filepath.Join(home, ".config", "securities-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.default_currency", "EUR")
	v.SetDefault("funding.central_depository", "central depository")
	v.SetDefault("funding.cross_currency_funding", false)
	v.SetDefault("funding.confirm_cooldown", "60s")
	v.SetDefault("funding.commission_debounce", "400ms")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("TRADER_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("TRADER_USER_ID"); v != "" {
		cfg.Trading.UserID = v
	}
	if v := os.Getenv("TRADER_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TRADER_PHONE"); v != "" {
		cfg.Phone.Number = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("trading.mode must be \"live\" or \"paper\", got %q", c.Trading.Mode)
	}
	if c.Trading.Mode == "live" && c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required in live mode")
	}
	if c.Funding.ConfirmCooldown <= 0 {
		return fmt.Errorf("funding.confirm_cooldown must be positive")
	}
	if c.Funding.CommissionDebounce <= 0 {
		return fmt.Errorf("funding.commission_debounce must be positive")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	return nil
}

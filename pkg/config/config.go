// Package config provides configuration loading and validation for the
// trading client. It uses Viper to load YAML configuration files with
// support for environment variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	// App contains application-level settings like name and
	// environment.
	App AppConfig `mapstructure:"app"`
	// Exchanges maps exchange names to their configurations.
	Exchanges map[string]ExchangeConfig `mapstructure:"exchanges"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	// Name is the application name used in logs.
	Name string `mapstructure:"name"`
	// Env is the environment: "development", "staging", or
	// "production".
	Env string `mapstructure:"env"`
	// LogLevel sets logging verbosity: "debug", "info", "warn",
	// "error".
	LogLevel string `mapstructure:"log_level"`
}

// ExchangeConfig contains settings for a single exchange. Credentials are
// deliberately not part of the file; they come from the environment.
type ExchangeConfig struct {
	// Enabled determines if this exchange should be used.
	Enabled bool `mapstructure:"enabled"`
	// NonceSeed is the last nonce already consumed by the API key, for
	// resuming a previously-used key. Leave 0 for a fresh key.
	NonceSeed int64 `mapstructure:"nonce_seed"`
	// TransactionLimit caps the number of history records fetched per
	// call. 0 means the exchange default.
	TransactionLimit int `mapstructure:"transaction_limit"`
}

// Load reads configuration from a YAML file at the given path. It also
// supports environment variable overrides with the CRYPTEX_ prefix.
// Returns an error if the file cannot be read, parsed, or fails
// validation.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CRYPTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	enabled := 0
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			enabled++
		}
		if ex.NonceSeed < 0 {
			return fmt.Errorf("exchange %s: nonce_seed must not be negative", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one exchange must be enabled")
	}

	return nil
}

// IsDevelopment returns true if the environment is "development".
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// EnabledExchanges returns a list of exchange names that are enabled.
func (c *Config) EnabledExchanges() []string {
	var exchanges []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			exchanges = append(exchanges, name)
		}
	}
	return exchanges
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds per-provider wiring: the process-wide default
// credential and optional client-side throttling/caching.
type ProviderConfig struct {
	APIKey               string `yaml:"api_key"`
	MaxRequestsPerMinute int    `yaml:"max_requests_per_minute"`
	Burst                int    `yaml:"burst"`
	CacheTTLSeconds      int    `yaml:"cache_ttl_sec"`
}

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port              string `yaml:"port"`
		RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	} `yaml:"server"`
	Storage struct {
		StateFile  string `yaml:"state_file"`
		SQLitePath string `yaml:"sqlite_path"` // when set, takes precedence over state_file
	} `yaml:"storage"`
	Providers struct {
		Default      string         `yaml:"default"`
		AlphaVantage ProviderConfig `yaml:"alphavantage"`
		Finnhub      ProviderConfig `yaml:"finnhub"`
	} `yaml:"providers"`
}

// Load reads config from a YAML file, then applies environment
// variable overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		if _, err := os.Stat("finboard.yaml"); err == nil {
			path = "finboard.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("FINBOARD_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("FINBOARD_REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err == nil && x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("FINBOARD_STATE_FILE"); v != "" {
		cfg.Storage.StateFile = v
	}
	if v := os.Getenv("FINBOARD_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Providers.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Providers.Finnhub.APIKey = v
	}

	// Defaults
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.RequestTimeoutSec == 0 {
		cfg.Server.RequestTimeoutSec = 10
	}
	if cfg.Storage.StateFile == "" {
		cfg.Storage.StateFile = "data/dashboard.json"
	}
	if cfg.Providers.Default == "" {
		cfg.Providers.Default = "alphavantage"
	}

	return cfg, nil
}

// Validate checks field consistency.
func (c *Config) Validate() error {
	if c.Server.RequestTimeoutSec <= 0 {
		return fmt.Errorf("server.request_timeout_sec must be positive")
	}
	switch c.Providers.Default {
	case "alphavantage", "finnhub":
	default:
		return fmt.Errorf("providers.default must be alphavantage or finnhub, got %q", c.Providers.Default)
	}
	return nil
}

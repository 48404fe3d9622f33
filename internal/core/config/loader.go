package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. Unknown keys are
// rejected rather than silently ignored, so a typoed tunable fails at
// startup instead of falling back to a default.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.UnmarshalStrict([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url is required")
	}
	if cfg.RateLimit.Shared && cfg.Redis.URL == "" {
		return nil, fmt.Errorf("rate_limit.shared requires redis.url")
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.Cache.StaleAfter == 0 {
		cfg.Cache.StaleAfter = 30 * time.Second
	}
	if cfg.Cache.EvictAfter == 0 {
		cfg.Cache.EvictAfter = 5 * time.Minute
	}
	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 15 * time.Second
	}
}

package config

import (
	"time"

	"github.com/liimonx/isp-console/internal/data/cache"
	"github.com/liimonx/isp-console/internal/data/retry"
	redisclient "github.com/liimonx/isp-console/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	API       APIConfig          `yaml:"api"`
	Cache     cache.Options      `yaml:"cache"`
	Retry     retry.Config       `yaml:"retry"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Monitor   MonitorConfig      `yaml:"monitor"`
}

// ServerConfig holds ops HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// APIConfig holds settings for the console backend API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig selects how throttle state is tracked. When Shared
// is true the gate lives in Redis so every console replica honors the
// same backend throttle.
type RateLimitConfig struct {
	Shared bool `yaml:"shared"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MonitorConfig holds settings for the router-fleet monitoring loop.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

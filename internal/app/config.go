package app

import "fmt"

// Config holds everything an App instance needs to run.
type Config struct {
	GridPath        string
	HealthcheckPort int
	LogFormat       string
	LogLevel        string
	Workers         int
}

// NewConfig validates a config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GridPath == "" {
		return nil, fmt.Errorf("grid path must not be empty")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

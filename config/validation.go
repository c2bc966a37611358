package config

import (
	"fmt"
	"slices"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// Validate checks every section and returns the first problem found.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateHTTPClient(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("httpclient config: %w", err)
	}

	if err := validateHub(&cfg.Hub); err != nil {
		return fmt.Errorf("hub config: %w", err)
	}

	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return NewMissingFieldError("app.name")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return NewInvalidFieldError("app.env", fmt.Sprintf("invalid environment: %s", cfg.Env), validEnvs)
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Level)) {
		return NewInvalidFieldError("log.level", fmt.Sprintf("invalid level: %s", cfg.Level), validLogLevels)
	}
	return nil
}

func validateHTTPClient(cfg *HTTPClientConfig) error {
	if cfg.Timeout <= 0 {
		return NewValidationError("httpclient.timeout", "must be positive")
	}

	if cfg.MaxConcurrency <= 0 {
		return NewValidationError("httpclient.maxconcurrency", "must be positive")
	}

	if cfg.LogPayloads && cfg.MaxPayloadLogBytes <= 0 {
		return NewValidationError("httpclient.maxpayloadlogbytes", "must be positive when payload logging is enabled")
	}

	for i, interval := range cfg.Retry.Intervals {
		if interval <= 0 {
			return NewValidationError(fmt.Sprintf("httpclient.retry.intervals[%d]", i), "must be positive")
		}
	}

	return nil
}

// validateHub leaves an absent connection string alone; commands that need the
// hub check HubConfig.IsConfigured themselves.
func validateHub(cfg *HubConfig) error {
	if cfg.ConnectionString != "" && cfg.Name == "" {
		return NewMissingFieldError("hub.name")
	}

	if cfg.TokenTTL < 0 {
		return NewValidationError("hub.tokenttl", "must not be negative")
	}

	if cfg.RateLimit < 0 {
		return NewValidationError("hub.ratelimit", "must not be negative")
	}

	if cfg.RateLimit > 0 && cfg.Burst <= 0 {
		return NewValidationError("hub.burst", "must be positive when rate limiting is enabled")
	}

	return nil
}

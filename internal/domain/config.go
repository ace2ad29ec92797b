// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"fmt"
	"strings"
	"time"
)

// Environment identifies the build/distribution channel the app is running
// under. It decides which backend sync path the coordinator takes.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentTestFlight Environment = "testflight"
	EnvironmentSandbox    Environment = "sandbox"
)

// UsesReceiptPath reports whether this environment syncs via the
// cryptographic receipt-validation path. Sandbox builds go straight to the
// direct-status path.
func (e Environment) UsesReceiptPath() bool {
	return e == EnvironmentProduction || e == EnvironmentTestFlight
}

// Config represents the application configuration
type Config struct {
	Version string
	Host    string `toml:"host" mapstructure:"host"`
	Port    int    `toml:"port" mapstructure:"port"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	// Environment selects the store/backend environment: production,
	// testflight or sandbox.
	Environment string `toml:"environment" mapstructure:"environment"`

	BackendURL string `toml:"backendUrl" mapstructure:"backendUrl"`
	BundleID   string `toml:"bundleId" mapstructure:"bundleId"`

	// UserID and AuthToken are handed to the sidecar by the app shell, which
	// owns authentication. The token is only used as a bearer credential on
	// backend calls.
	UserID    string `toml:"userId" mapstructure:"userId"`
	AuthToken string `toml:"authToken" mapstructure:"authToken"`

	// ExpirationCheckHours is the interval of the expiration monitor.
	ExpirationCheckHours int `toml:"expirationCheckHours" mapstructure:"expirationCheckHours"`

	// RetryMaxAttempts and RetryDelaySeconds form the deterministic backoff
	// table for receipt validation. Attempts beyond the table reuse its last
	// entry.
	RetryMaxAttempts  int   `toml:"retryMaxAttempts" mapstructure:"retryMaxAttempts"`
	RetryDelaySeconds []int `toml:"retryDelaySeconds" mapstructure:"retryDelaySeconds"`

	MetricsEnabled bool `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
}

// Env returns the normalized environment value.
func (c *Config) Env() Environment {
	switch strings.TrimSpace(strings.ToLower(c.Environment)) {
	case "testflight", "prerelease", "beta":
		return EnvironmentTestFlight
	case "sandbox", "dev", "development", "local":
		return EnvironmentSandbox
	default:
		return EnvironmentProduction
	}
}

// ExpirationCheckInterval returns the monitor interval, defaulting to 24h.
func (c *Config) ExpirationCheckInterval() time.Duration {
	if c.ExpirationCheckHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.ExpirationCheckHours) * time.Hour
}

// RetryDelays converts the configured schedule into durations.
func (c *Config) RetryDelays() []time.Duration {
	delays := make([]time.Duration, 0, len(c.RetryDelaySeconds))
	for _, s := range c.RetryDelaySeconds {
		if s < 0 {
			s = 0
		}
		delays = append(delays, time.Duration(s)*time.Second)
	}
	return delays
}

// Validate checks the fields the service cannot run without.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backendUrl is required")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("backendUrl must be an http(s) URL, got %q", c.BackendURL)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retryMaxAttempts must be at least 1")
	}
	return nil
}

// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the application configuration from a TOML file with
// environment variable overrides (BRAINDUMPSTER__* keys).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/domain"
)

const envPrefix = "BRAINDUMPSTER__"

var configTemplate = `# config.toml (generated)

# Hostname / IP for the local status API.
host = "127.0.0.1"

# Port for the local status API.
port = 7410

# Log level: ERROR, DEBUG, INFO, WARN, TRACE
logLevel = "INFO"

# Store/backend environment: production, testflight or sandbox.
environment = "sandbox"

# Subscription backend base URL.
backendUrl = "https://api.braindumpster.app"

# App bundle identifier sent with receipt verification requests.
bundleId = "com.furkancekic.braindumpster"

# Receipt validation retry budget.
retryMaxAttempts = 3
retryDelaySeconds = [1, 2, 4]
`

// AppConfig owns the viper instance and the resolved domain.Config.
type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper
}

// New loads configuration from configDir, creating a default config.toml on
// first run.
func New(configDir, version string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{Version: version},
	}

	c.defaults()

	if err := c.load(configDir); err != nil {
		return nil, err
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	c.Config.Version = version

	c.watch()

	return c, nil
}

// configKeys lists every config key with its default. Viper lowercases key
// names internally, so the camelCase spelling here is also the source for
// deriving the BRAINDUMPSTER__* environment variable names.
var configKeys = []struct {
	name string
	def  any
}{
	{"host", "127.0.0.1"},
	{"port", 7410},
	{"logLevel", "INFO"},
	{"logPath", ""},
	{"logMaxSize", 50},
	{"logMaxBackups", 3},
	{"environment", "sandbox"},
	{"backendUrl", "https://api.braindumpster.app"},
	{"bundleId", "com.furkancekic.braindumpster"},
	{"userId", ""},
	{"authToken", ""},
	{"expirationCheckHours", 24},
	{"retryMaxAttempts", 3},
	{"retryDelaySeconds", []int{1, 2, 4}},
	{"metricsEnabled", false},
}

func (c *AppConfig) defaults() {
	for _, key := range configKeys {
		c.viper.SetDefault(key.name, key.def)
		// BRAINDUMPSTER__LOG_LEVEL overrides logLevel, and so on.
		_ = c.viper.BindEnv(key.name, envPrefix+envKey(key.name))
	}
}

// envKey converts a camelCase config key into SCREAMING_SNAKE form.
func envKey(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func (c *AppConfig) load(configDir string) error {
	c.viper.SetConfigType("toml")

	if configDir == "" {
		return nil
	}

	path := filepath.Join(configDir, "config.toml")
	c.viper.SetConfigFile(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := c.writeDefault(configDir, path); err != nil {
			return err
		}
	}

	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	return nil
}

func (c *AppConfig) writeDefault(configDir, path string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("config: failed to create directory %s: %w", configDir, err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("config: wrote default config file")
	return nil
}

// watch re-applies dynamic settings when the config file changes on disk.
// Only the log level is applied live; everything else needs a restart.
func (c *AppConfig) watch() {
	if c.viper.ConfigFileUsed() == "" {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := c.viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("config: failed to re-read config file")
			return
		}

		level := c.viper.GetString("logLevel")
		if level != c.Config.LogLevel {
			c.Config.LogLevel = level
			zerolog.SetGlobalLevel(parseLogLevel(level))
			log.Info().Str("logLevel", level).Msg("config: log level updated")
		}
	})
	c.viper.WatchConfig()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

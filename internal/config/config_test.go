// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := New(tmpDir, "test")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(tmpDir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", c.Config.Host)
	assert.Equal(t, 7410, c.Config.Port)
	assert.Equal(t, "sandbox", c.Config.Environment)
	assert.Equal(t, 3, c.Config.RetryMaxAttempts)
	assert.Equal(t, []int{1, 2, 4}, c.Config.RetryDelaySeconds)
	assert.Equal(t, "test", c.Config.Version)
}

func TestNew_ReadsExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
host = "0.0.0.0"
port = 9999
logLevel = "DEBUG"
environment = "production"
backendUrl = "https://backend.example.com"
retryMaxAttempts = 5
retryDelaySeconds = [2, 4, 8]
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0o600))

	c, err := New(tmpDir, "test")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", c.Config.Host)
	assert.Equal(t, 9999, c.Config.Port)
	assert.Equal(t, "DEBUG", c.Config.LogLevel)
	assert.Equal(t, "production", c.Config.Environment)
	assert.Equal(t, "https://backend.example.com", c.Config.BackendURL)
	assert.Equal(t, 5, c.Config.RetryMaxAttempts)
	assert.Equal(t, []int{2, 4, 8}, c.Config.RetryDelaySeconds)
}

func TestNew_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()

	t.Setenv("BRAINDUMPSTER__LOG_LEVEL", "TRACE")
	t.Setenv("BRAINDUMPSTER__BACKEND_URL", "http://localhost:8080")
	t.Setenv("BRAINDUMPSTER__USER_ID", "user-42")

	c, err := New(tmpDir, "test")
	require.NoError(t, err)

	assert.Equal(t, "TRACE", c.Config.LogLevel)
	assert.Equal(t, "http://localhost:8080", c.Config.BackendURL)
	assert.Equal(t, "user-42", c.Config.UserID)
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"host", "HOST"},
		{"logLevel", "LOG_LEVEL"},
		{"retryMaxAttempts", "RETRY_MAX_ATTEMPTS"},
		{"backendUrl", "BACKEND_URL"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, envKey(tt.in))
	}
}

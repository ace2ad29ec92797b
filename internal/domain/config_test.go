// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		expected Environment
	}{
		{"empty defaults to production", "", EnvironmentProduction},
		{"production", "production", EnvironmentProduction},
		{"uppercase production", "PRODUCTION", EnvironmentProduction},
		{"testflight", "testflight", EnvironmentTestFlight},
		{"beta alias", "beta", EnvironmentTestFlight},
		{"prerelease alias", "prerelease", EnvironmentTestFlight},
		{"sandbox", "sandbox", EnvironmentSandbox},
		{"local alias", "local", EnvironmentSandbox},
		{"whitespace trimmed", "  sandbox  ", EnvironmentSandbox},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.value}
			assert.Equal(t, tt.expected, cfg.Env())
		})
	}
}

func TestUsesReceiptPath(t *testing.T) {
	t.Parallel()

	assert.True(t, EnvironmentProduction.UsesReceiptPath())
	assert.True(t, EnvironmentTestFlight.UsesReceiptPath())
	assert.False(t, EnvironmentSandbox.UsesReceiptPath())
}

func TestExpirationCheckInterval(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, 24*time.Hour, cfg.ExpirationCheckInterval())

	cfg.ExpirationCheckHours = 6
	assert.Equal(t, 6*time.Hour, cfg.ExpirationCheckInterval())

	cfg.ExpirationCheckHours = -1
	assert.Equal(t, 24*time.Hour, cfg.ExpirationCheckInterval())
}

func TestRetryDelays(t *testing.T) {
	t.Parallel()

	cfg := &Config{RetryDelaySeconds: []int{1, 2, -3}}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 0}, cfg.RetryDelays())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := &Config{BackendURL: "https://api.braindumpster.app", RetryMaxAttempts: 3}
	require.NoError(t, cfg.Validate())

	cfg.BackendURL = ""
	require.Error(t, cfg.Validate())

	cfg.BackendURL = "ftp://nope"
	require.Error(t, cfg.Validate())

	cfg.BackendURL = "http://localhost:9000"
	cfg.RetryMaxAttempts = 0
	require.Error(t, cfg.Validate())
}

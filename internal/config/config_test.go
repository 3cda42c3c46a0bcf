// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ENDPOINT NORMALIZATION TESTS
// =============================================================================

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "http://127.0.0.1:8080", "http://127.0.0.1:8080", false},
		{"https", "https://inference.local", "https://inference.local", false},
		{"trailing slash", "http://127.0.0.1:8080/", "http://127.0.0.1:8080", false},
		{"multiple slashes", "http://127.0.0.1:8080///", "http://127.0.0.1:8080", false},
		{"whitespace", "  http://localhost:1234  ", "http://localhost:1234", false},
		{"with path", "http://localhost:8080/v1", "http://localhost:8080/v1", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"no scheme", "localhost:8080", "", true},
		{"bad scheme", "ftp://localhost", "", true},
		{"no host", "http://", "", true},
		{"garbage", "://nope", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeEndpoint(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidURL), "want ErrInvalidURL, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeEndpoint_Idempotent(t *testing.T) {
	once, err := NormalizeEndpoint("http://127.0.0.1:8080/")
	require.NoError(t, err)
	twice, err := NormalizeEndpoint(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestSetEndpoint_InvalidLeavesConfigUnchanged(t *testing.T) {
	cfg := Default()
	before := cfg.Endpoint.BaseURL

	err := cfg.SetEndpoint("not a url")
	require.Error(t, err)
	assert.Equal(t, before, cfg.Endpoint.BaseURL)

	require.NoError(t, cfg.SetEndpoint("http://10.0.0.5:8000/"))
	assert.Equal(t, "http://10.0.0.5:8000", cfg.Endpoint.BaseURL)
}

// =============================================================================
// DEFAULT AND VALIDATION TESTS
// =============================================================================

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad endpoint", func(c *Config) { c.Endpoint.BaseURL = "nope" }},
		{"zero timeout", func(c *Config) { c.Endpoint.TimeoutSecs = 0 }},
		{"negative retries", func(c *Config) { c.Endpoint.MaxRetries = -1 }},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 2.5 }},
		{"temperature negative", func(c *Config) { c.Generation.Temperature = -0.1 }},
		{"unbounded max_tokens", func(c *Config) { c.Generation.MaxTokens = -1 }},
		{"zero max_tokens", func(c *Config) { c.Generation.MaxTokens = 0 }},
		{"unknown theme", func(c *Config) { c.UI.Theme = "solarized" }},
		{"zero history cap", func(c *Config) { c.History.MaxConversations = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = "1.0"

[endpoint]
base_url = "http://192.168.1.10:8080"
timeout_secs = 60

[generation]
model = "qwen2.5-7b"
temperature = 0.3
max_tokens = 2048
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "http://192.168.1.10:8080", cfg.Endpoint.BaseURL)
	assert.Equal(t, 60, cfg.Endpoint.TimeoutSecs)
	assert.Equal(t, "qwen2.5-7b", cfg.Generation.Model)
	assert.InDelta(t, 0.3, cfg.Generation.Temperature, 1e-9)

	// Unspecified sections fall back to defaults.
	assert.Equal(t, "auto", cfg.UI.Theme)
	assert.Equal(t, 100, cfg.History.MaxConversations)
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"endpoint":{"base_url":"http://localhost:9999","timeout_secs":10},"generation":{"model":"m"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.Endpoint.BaseURL)
	assert.Equal(t, "m", cfg.Generation.Model)
}

func TestLoadFromPath_InvalidValuesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[generation]
temperature = 9.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestLoadFromPath_FixesPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`version = "1.0"`), 0644))

	_, err := LoadFromPath(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

// =============================================================================
// ENVIRONMENT OVERRIDE TESTS
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LMCHAT_ENDPOINT", "http://10.1.1.1:8080/")
	t.Setenv("LMCHAT_MODEL", "env-model")
	t.Setenv("LMCHAT_API_KEY", "sk-env")
	t.Setenv("LMCHAT_TIMEOUT_SECS", "120")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "http://10.1.1.1:8080", cfg.Endpoint.BaseURL)
	assert.Equal(t, "env-model", cfg.Generation.Model)
	assert.Equal(t, "sk-env", cfg.Endpoint.APIKey)
	assert.Equal(t, 120, cfg.Endpoint.TimeoutSecs)
}

func TestApplyEnvOverrides_IgnoresInvalid(t *testing.T) {
	t.Setenv("LMCHAT_ENDPOINT", "not-a-url")
	t.Setenv("LMCHAT_TIMEOUT_SECS", "zero")

	cfg := Default()
	before := *cfg
	cfg.ApplyEnvOverrides()

	assert.Equal(t, before.Endpoint.BaseURL, cfg.Endpoint.BaseURL)
	assert.Equal(t, before.Endpoint.TimeoutSecs, cfg.Endpoint.TimeoutSecs)
}

// =============================================================================
// SAVE TESTS
// =============================================================================

func TestSaveTOML_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Endpoint.BaseURL = "http://10.2.2.2:8080"
	cfg.Endpoint.APIKey = "sk-secret"
	cfg.Generation.Model = "roundtrip-model"

	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "saved config can hold an API key")

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Endpoint.BaseURL, loaded.Endpoint.BaseURL)
	assert.Equal(t, cfg.Endpoint.APIKey, loaded.Endpoint.APIKey)
	assert.Equal(t, cfg.Generation.Model, loaded.Generation.Model)
}

func TestSaveJSON_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Generation.SystemPrompt = "be terse"

	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "be terse", loaded.Generation.SystemPrompt)
}

// =============================================================================
// BRIDGE TESTS
// =============================================================================

func TestClientConfigBridge(t *testing.T) {
	cfg := Default()
	cfg.Endpoint.BaseURL = "http://host:1"
	cfg.Endpoint.TimeoutSecs = 45
	cfg.Generation.MaxTokens = 512

	cc := cfg.ClientConfig()
	assert.Equal(t, "http://host:1", cc.BaseURL)
	assert.Equal(t, 45.0, cc.Timeout.Seconds())
	assert.Equal(t, 512, cc.MaxTokens)
}

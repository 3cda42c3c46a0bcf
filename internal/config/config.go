// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lmchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.lmchat/config.toml
//   - ~/.lmchat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/lmchat/internal/openai"
	"github.com/jeranaias/lmchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lmchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Endpoint configuration
	Endpoint EndpointConfig `toml:"endpoint" json:"endpoint"`

	// Generation parameters
	Generation GenerationConfig `toml:"generation" json:"generation"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// History configuration
	History HistoryConfig `toml:"history" json:"history"`
}

// EndpointConfig describes the completion endpoint to talk to.
type EndpointConfig struct {
	// BaseURL is the endpoint base, normalized to scheme://host[:port]
	// with no trailing slash. API paths are appended to it.
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is sent as a bearer token when set. Local servers usually
	// ignore it.
	APIKey string `toml:"api_key,omitempty" json:"api_key,omitempty"`
	// TimeoutSecs is the request timeout for non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries for transport failures (0 = single attempt).
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// RetryDelaySecs is the initial backoff delay between retries.
	RetryDelaySecs int `toml:"retry_delay_secs" json:"retry_delay_secs"`
}

// GenerationConfig holds the parameters sent with every completion request.
type GenerationConfig struct {
	Model       string  `toml:"model" json:"model"`
	Temperature float64 `toml:"temperature" json:"temperature"`
	// MaxTokens is always finite; unbounded generation is never requested.
	MaxTokens    int    `toml:"max_tokens" json:"max_tokens"`
	SystemPrompt string `toml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	// Stream selects server-sent-events delivery for interactive surfaces.
	Stream bool `toml:"stream" json:"stream"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Theme is "dark", "light", or "auto".
	Theme string `toml:"theme" json:"theme"`
	// ShowStats displays generation statistics after each reply.
	ShowStats bool `toml:"show_stats" json:"show_stats"`
	// Markdown renders assistant replies through the terminal markdown
	// renderer instead of printing raw text.
	Markdown bool `toml:"markdown" json:"markdown"`
}

// HistoryConfig controls conversation persistence.
type HistoryConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// MaxConversations caps the stored history; oldest are evicted.
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
	// Path overrides the default database location (~/.lmchat/history.db).
	Path string `toml:"path,omitempty" json:"path,omitempty"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// CurrentVersion is the config schema version written on save.
const CurrentVersion = "1.0"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Endpoint: EndpointConfig{
			BaseURL:        "http://127.0.0.1:8080",
			TimeoutSecs:    30,
			MaxRetries:     0,
			RetryDelaySecs: 1,
		},
		Generation: GenerationConfig{
			Model:       "local-model",
			Temperature: 0.7,
			MaxTokens:   1024,
			Stream:      true,
		},
		UI: UIConfig{
			Theme:     "auto",
			ShowStats: true,
			Markdown:  true,
		},
		History: HistoryConfig{
			Enabled:          true,
			MaxConversations: 100,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the lmchat configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".lmchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 since they can hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied after the file, validation last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finishLoad(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finishLoad(cfg)
		}
	}

	return finishLoad(cfg)
}

// finishLoad applies overrides, defaults and validation to a loaded config.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all filesystems; warn only.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch filepath.Ext(path) {
	case ".toml":
		err = LoadTOML(cfg, path)
	case ".json":
		err = LoadJSON(cfg, path)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	return finishLoad(cfg)
}

// fillDefaults replaces zero values with defaults so a sparse config file
// still yields a complete configuration.
func (c *Config) fillDefaults() {
	def := Default()

	if c.Version == "" {
		c.Version = def.Version
	}
	if c.Endpoint.BaseURL == "" {
		c.Endpoint.BaseURL = def.Endpoint.BaseURL
	}
	if c.Endpoint.TimeoutSecs == 0 {
		c.Endpoint.TimeoutSecs = def.Endpoint.TimeoutSecs
	}
	if c.Endpoint.RetryDelaySecs == 0 {
		c.Endpoint.RetryDelaySecs = def.Endpoint.RetryDelaySecs
	}
	if c.Generation.Model == "" {
		c.Generation.Model = def.Generation.Model
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = def.Generation.Temperature
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = def.Generation.MaxTokens
	}
	if c.UI.Theme == "" {
		c.UI.Theme = def.UI.Theme
	}
	if c.History.MaxConversations == 0 {
		c.History.MaxConversations = def.History.MaxConversations
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies LMCHAT_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LMCHAT_ENDPOINT"); v != "" {
		if normalized, err := NormalizeEndpoint(v); err == nil {
			c.Endpoint.BaseURL = normalized
		}
	}
	if v := os.Getenv("LMCHAT_API_KEY"); v != "" {
		c.Endpoint.APIKey = v
	}
	if v := os.Getenv("LMCHAT_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("LMCHAT_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Endpoint.TimeoutSecs = secs
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the TOML config file atomically.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# lmchat configuration\n")
	buf.WriteString("# Generated " + time.Now().Format(time.RFC3339) + "\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := util.AtomicWriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := NormalizeEndpoint(c.Endpoint.BaseURL); err != nil {
		return ValidationError{Field: "endpoint.base_url", Message: err.Error()}
	}
	if c.Endpoint.TimeoutSecs <= 0 {
		return ValidationError{Field: "endpoint.timeout_secs", Message: "must be positive"}
	}
	if c.Endpoint.MaxRetries < 0 {
		return ValidationError{Field: "endpoint.max_retries", Message: "must not be negative"}
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return ValidationError{Field: "generation.temperature", Message: "must be between 0.0 and 2.0"}
	}
	if c.Generation.MaxTokens <= 0 {
		return ValidationError{Field: "generation.max_tokens", Message: "must be positive"}
	}
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		return ValidationError{Field: "ui.theme", Message: "must be dark, light, or auto"}
	}
	if c.History.MaxConversations <= 0 {
		return ValidationError{Field: "history.max_conversations", Message: "must be positive"}
	}
	return nil
}

// =============================================================================
// CLIENT BRIDGING
// =============================================================================

// ClientConfig converts the configuration into endpoint client options.
func (c *Config) ClientConfig() *openai.ClientConfig {
	return &openai.ClientConfig{
		BaseURL:     c.Endpoint.BaseURL,
		APIKey:      c.Endpoint.APIKey,
		Model:       c.Generation.Model,
		Temperature: c.Generation.Temperature,
		MaxTokens:   c.Generation.MaxTokens,
		Timeout:     time.Duration(c.Endpoint.TimeoutSecs) * time.Second,
		MaxRetries:  c.Endpoint.MaxRetries,
		RetryDelay:  time.Duration(c.Endpoint.RetryDelaySecs) * time.Second,
	}
}

// HistoryPath returns the conversation database path.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	copied := *c
	return &copied
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/util"
)

// Environment variable overrides, applied after file loading.
const (
	EnvBaseURL  = "LUNA_BASE_URL"
	EnvAPIToken = "LUNA_API_TOKEN"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete luna client configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	History HistoryConfig `toml:"history"`
}

// BackendConfig describes how to reach the generation backend.
type BackendConfig struct {
	// BaseURL is the backend root, e.g. "https://luna.example.com".
	BaseURL string `toml:"base_url"`

	// APIToken is the bearer credential. Usually supplied via
	// LUNA_API_TOKEN rather than stored in the file.
	APIToken string `toml:"api_token"`

	// RequestTimeoutSecs bounds non-streaming requests.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`

	// ChartTimeoutSecs bounds the fire-and-forget chart follow-up.
	ChartTimeoutSecs int `toml:"chart_timeout_secs"`
}

// HistoryConfig controls local caching of server-side history.
type HistoryConfig struct {
	// CachePath is the SQLite cache location. Empty disables caching.
	CachePath string `toml:"cache_path"`

	// PollIntervalSecs is how often the conversation list refreshes.
	PollIntervalSecs int `toml:"poll_interval_secs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Backend: BackendConfig{
			RequestTimeoutSecs: 30,
			ChartTimeoutSecs:   45,
		},
		History: HistoryConfig{
			CachePath:        filepath.Join(home, ".luna", "history.db"),
			PollIntervalSecs: 60,
		},
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".luna", "config.toml")
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration from path, falling back to defaults when
// the file does not exist, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment are enough to run.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.Backend.APIToken = v
	}
}

// Validate checks the configuration for coherence. A missing base URL is
// legal here; the client reports it as unconfigured on first use.
func (c *Config) Validate() error {
	if c.Backend.BaseURL != "" {
		parsed, err := url.Parse(c.Backend.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid backend base_url %q", c.Backend.BaseURL)
		}
	}
	if c.Backend.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("request_timeout_secs must be positive, got %d", c.Backend.RequestTimeoutSecs)
	}
	if c.Backend.ChartTimeoutSecs <= 0 {
		return fmt.Errorf("chart_timeout_secs must be positive, got %d", c.Backend.ChartTimeoutSecs)
	}
	if c.History.PollIntervalSecs <= 0 {
		return fmt.Errorf("poll_interval_secs must be positive, got %d", c.History.PollIntervalSecs)
	}
	return nil
}

// Save writes the configuration to path atomically, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
